package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/starload/starload/internal/warehouse"
)

// ConsistencyCheck reports facts carrying negative measures. Returns and
// cancellations legitimately have negative quantities and totals, so the
// check never fails a table; it feeds the recommendations instead.
type ConsistencyCheck struct {
	warehouse.Consistency
	NegativeAmountsPct    float64 `json:"negative_amounts_pct"`
	NegativePricesPct     float64 `json:"negative_prices_pct"`
	NegativeQuantitiesPct float64 `json:"negative_quantities_pct"`
	Message               string  `json:"message,omitempty"`
}

// NewConsistencyCheck derives percentages of all facts from c.
func NewConsistencyCheck(c *warehouse.Consistency) *ConsistencyCheck {
	check := &ConsistencyCheck{Consistency: *c}
	check.NegativeAmountsPct = percent(c.NegativeAmounts, c.Facts)
	check.NegativePricesPct = percent(c.NegativePrices, c.Facts)
	check.NegativeQuantitiesPct = percent(c.NegativeQuantities, c.Facts)

	var parts []string
	for _, p := range []struct {
		name string
		n    int64
	}{{"total_amount", c.NegativeAmounts}, {"unit_price", c.NegativePrices}, {"quantity", c.NegativeQuantities}} {
		if p.n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", p.name, p.n))
		}
	}
	if len(parts) > 0 {
		check.Message = "negative values: " + strings.Join(parts, ", ")
	}
	return check
}

func (v *Validator) validateConsistency(ctx context.Context) (*ConsistencyCheck, error) {
	c, err := v.Store.Consistency(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking fact consistency: %w", err)
	}
	return NewConsistencyCheck(c), nil
}

// percent rounds n/total to two decimals; an empty total is 0%.
func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n*10000/total) / 100
}
