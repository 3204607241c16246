package validation

import (
	"fmt"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

// RowCountCheck holds the result of a row count comparison.
type RowCountCheck struct {
	ExpectedCount int64  `json:"expected_count"`
	ActualCount   int64  `json:"actual_count"`
	Match         bool   `json:"match"`
	Message       string `json:"message,omitempty"`
}

// validateRowCount compares a table's stored row count with the expectation.
// Dimensions only grow across loads, so a dimension passes when it holds at
// least the expected rows.
func (v *Validator) validateRowCount(t *schema.Table, counts *warehouse.Counts) *RowCountCheck {
	var expected, actual int64
	exact := false
	if t.Kind == schema.KindFact {
		expected, actual = v.Expected.Facts, counts.Facts
		exact = v.Expected.ExactFacts
	} else {
		expected, actual = v.Expected.Dimensions[t.Name], counts.Dimensions[t.Name]
	}

	check := &RowCountCheck{ExpectedCount: expected, ActualCount: actual}
	if exact {
		check.Match = actual == expected
	} else {
		check.Match = actual >= expected
	}

	if !check.Match {
		check.Message = fmt.Sprintf("count mismatch: expected=%d, actual=%d (diff=%d)",
			expected, actual, expected-actual)
	}
	return check
}
