package warehouse

// Progress is a snapshot of a running load.
type Progress struct {
	Phase         string   `json:"phase"`
	BatchesDone   int      `json:"batches_done"`
	BatchesTotal  int      `json:"batches_total"`
	FactsInserted int64    `json:"facts_inserted"`
	FactsTotal    int64    `json:"facts_total"`
	RowsDropped   int64    `json:"rows_dropped"`
	Errors        []string `json:"errors,omitempty"`
}

// Percent returns batch progress in the range 0-100.
func (p Progress) Percent() float64 {
	if p.BatchesTotal == 0 {
		if p.Phase == PhaseStats {
			return 100
		}
		return 0
	}
	return float64(p.BatchesDone) / float64(p.BatchesTotal) * 100
}

// ProgressFunc receives progress updates. It is called synchronously from the
// loading goroutine.
type ProgressFunc func(Progress)
