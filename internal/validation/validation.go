package validation

import (
	"context"
	"time"

	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/warehouse"
)

// CountReader is the part of a warehouse store validation reads from.
type CountReader interface {
	Counts(ctx context.Context) (*warehouse.Counts, error)
	OrphanCounts(ctx context.Context) (map[string]int64, error)
	Consistency(ctx context.Context) (*warehouse.Consistency, error)
}

// Expectation is what the warehouse should hold after loading a dataset.
type Expectation struct {
	Dimensions map[string]int64
	Facts      int64
	// ExactFacts requires the fact count to match exactly. Without it the
	// store may hold more facts than expected, as after an appending load.
	ExactFacts bool
}

// ExpectationFromPlan derives an expectation from a dry-run plan.
func ExpectationFromPlan(p *warehouse.Plan, replaceFacts bool) *Expectation {
	return &Expectation{
		Dimensions: p.Dimensions,
		Facts:      p.FactsResolved,
		ExactFacts: replaceFacts,
	}
}

// Result holds the outcome of warehouse validation.
type Result struct {
	Status      string        `json:"status"` // PASS, FAIL, PARTIAL
	Tables      []TableResult `json:"tables"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// TableResult holds validation results for a single table.
type TableResult struct {
	Name             string            `json:"name"`
	RowCountCheck    *RowCountCheck    `json:"row_count_check,omitempty"`
	IntegrityCheck   *IntegrityCheck   `json:"integrity_check,omitempty"`
	ConsistencyCheck *ConsistencyCheck `json:"consistency_check,omitempty"`
	Status           string            `json:"status"` // PASS, FAIL
}

// Validator checks a loaded warehouse.
type Validator struct {
	Store    CountReader
	Catalog  *schema.Catalog
	Expected *Expectation // nil skips row count checks
	Callback func(table, checkType string, passed bool)
}

// Validate runs row count checks on every table, and the referential
// integrity and negative-value checks on the fact table.
func (v *Validator) Validate(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	counts, err := v.Store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range v.Catalog.Tables {
		t := &v.Catalog.Tables[i]
		tr := TableResult{Name: t.Name, Status: "PASS"}

		if v.Expected != nil {
			rc := v.validateRowCount(t, counts)
			tr.RowCountCheck = rc
			if !rc.Match {
				tr.Status = "FAIL"
			}
			v.notify(t.Name, "row_count", rc.Match)
		}

		if t.Kind == schema.KindFact {
			ic, err := v.validateIntegrity(ctx, t)
			if err != nil {
				return nil, err
			}
			tr.IntegrityCheck = ic
			if ic.Orphans > 0 {
				tr.Status = "FAIL"
			}
			v.notify(t.Name, "integrity", ic.Orphans == 0)

			cc, err := v.validateConsistency(ctx)
			if err != nil {
				return nil, err
			}
			tr.ConsistencyCheck = cc
			v.notify(t.Name, "consistency", true)
		}

		result.Tables = append(result.Tables, tr)
	}

	result.CompletedAt = time.Now()
	result.Status = computeOverallStatus(result.Tables)
	return result, nil
}

func (v *Validator) notify(table, checkType string, passed bool) {
	if v.Callback != nil {
		v.Callback(table, checkType, passed)
	}
}

func computeOverallStatus(tables []TableResult) string {
	if len(tables) == 0 {
		return "PASS"
	}
	failCount := 0
	for _, t := range tables {
		if t.Status == "FAIL" {
			failCount++
		}
	}
	if failCount == 0 {
		return "PASS"
	}
	if failCount == len(tables) {
		return "FAIL"
	}
	return "PARTIAL"
}
