package warehouse

import (
	"github.com/starload/starload/internal/dimension"
	"github.com/starload/starload/internal/fact"
	"github.com/starload/starload/internal/schema"
)

// Plan describes what a load of a row set would write, without touching a
// store.
type Plan struct {
	InputRows     int64            `json:"input_rows" yaml:"input_rows"`
	Dimensions    map[string]int64 `json:"dimensions" yaml:"dimensions"`
	FactsResolved int64            `json:"facts_resolved" yaml:"facts_resolved"`
	RowsDropped   int64            `json:"rows_dropped" yaml:"rows_dropped"`
	DropsByReason map[string]int64 `json:"drops_by_reason,omitempty" yaml:"drops_by_reason,omitempty"`
	Batches       int              `json:"batches" yaml:"batches"`
	BatchSize     int              `json:"batch_size" yaml:"batch_size"`
}

// Plan builds dimensions, assigns provisional surrogate keys and resolves
// facts in memory. Against an empty store the result matches what Load
// would report.
func (l *Loader) Plan(rows []schema.TransactionRow) *Plan {
	dims := dimension.Build(rows)
	for i := range dims.Dates {
		dims.Dates[i].DateID = int64(i + 1)
	}
	for i := range dims.Countries {
		dims.Countries[i].CountryID = int64(i + 1)
	}

	res := fact.Resolve(rows, fact.NewKeyMaps(dims))
	facts := len(res.Facts)
	return &Plan{
		InputRows:     int64(len(rows)),
		Dimensions:    dims.Counts(),
		FactsResolved: int64(facts),
		RowsDropped:   int64(len(res.Drops)),
		DropsByReason: res.DropsByReason(),
		Batches:       (facts + l.opts.BatchSize - 1) / l.opts.BatchSize,
		BatchSize:     l.opts.BatchSize,
	}
}
