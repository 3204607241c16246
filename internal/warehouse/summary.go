package warehouse

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Summary reports the outcome of one load.
type Summary struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Duration  string    `json:"duration" yaml:"duration"`

	InputRows     int64            `json:"input_rows" yaml:"input_rows"`
	FactsResolved int64            `json:"facts_resolved" yaml:"facts_resolved"`
	RowsDropped   int64            `json:"rows_dropped" yaml:"rows_dropped"`
	DropsByReason map[string]int64 `json:"drops_by_reason,omitempty" yaml:"drops_by_reason,omitempty"`

	DimensionRowsWritten map[string]int64 `json:"dimension_rows_written" yaml:"dimension_rows_written"`

	FactsInserted    int64        `json:"facts_inserted" yaml:"facts_inserted"`
	BatchesCommitted int          `json:"batches_committed" yaml:"batches_committed"`
	BatchesFailed    int          `json:"batches_failed" yaml:"batches_failed"`
	FactsFailed      int64        `json:"facts_failed" yaml:"facts_failed"`
	BatchErrors      []BatchError `json:"batch_errors,omitempty" yaml:"batch_errors,omitempty"`

	// Store holds the row counts read back after the load.
	Store *Counts `json:"store,omitempty" yaml:"store,omitempty"`
}

// Complete reports whether every resolved fact was written.
func (s *Summary) Complete() bool {
	return s.BatchesFailed == 0 && s.FactsInserted == s.FactsResolved
}

// String renders the summary for terminal output.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", s.RunID, s.Duration)
	fmt.Fprintf(&b, "  Rows in:          %d\n", s.InputRows)
	fmt.Fprintf(&b, "  Facts resolved:   %d\n", s.FactsResolved)
	fmt.Fprintf(&b, "  Rows dropped:     %d", s.RowsDropped)
	if len(s.DropsByReason) > 0 {
		reasons := make([]string, 0, len(s.DropsByReason))
		for k, v := range s.DropsByReason {
			reasons = append(reasons, fmt.Sprintf("%s=%d", k, v))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, " (missing %s)", strings.Join(reasons, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Facts inserted:   %d in %d batches", s.FactsInserted, s.BatchesCommitted)
	if s.BatchesFailed > 0 {
		fmt.Fprintf(&b, " (%d batches failed, %d facts lost)", s.BatchesFailed, s.FactsFailed)
	}
	b.WriteString("\n")

	if s.Store != nil {
		b.WriteString("  Warehouse:\n")
		tables := make([]string, 0, len(s.Store.Dimensions))
		for t := range s.Store.Dimensions {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Fprintf(&b, "    %-14s %d\n", t, s.Store.Dimensions[t])
		}
		fmt.Fprintf(&b, "    %-14s %d (valid %d, invalid %d)\n", "fact_sales", s.Store.Facts, s.Store.ValidFacts, s.Store.InvalidFacts)
	}
	return b.String()
}
