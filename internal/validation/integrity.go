package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/starload/starload/internal/schema"
)

// IntegrityCheck counts facts whose foreign keys reference no dimension row.
type IntegrityCheck struct {
	Orphans int64            `json:"orphans"`
	ByKey   map[string]int64 `json:"by_key,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (v *Validator) validateIntegrity(ctx context.Context, t *schema.Table) (*IntegrityCheck, error) {
	byKey, err := v.Store.OrphanCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting orphans in %s: %w", t.Name, err)
	}

	check := &IntegrityCheck{ByKey: map[string]int64{}}
	var bad []string
	for _, fk := range t.ForeignKeys {
		n := byKey[fk.Name]
		check.ByKey[fk.Name] = n
		check.Orphans += n
		if n > 0 {
			bad = append(bad, fmt.Sprintf("%s=%d", fk.Name, n))
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		check.Message = "orphaned facts: " + strings.Join(bad, ", ")
	}
	return check, nil
}
