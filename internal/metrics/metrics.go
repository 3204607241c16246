// Package metrics records load pipeline counters and step timings through a
// pluggable backend. The default backend discards everything, so callers never
// need to check whether metrics are configured.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	StepTotal     = "starload_step_total"
	StepDuration  = "starload_step_duration_seconds"
	RowsTotal     = "starload_rows_total"
	BatchesTotal  = "starload_batches_total"
	DimensionRows = "starload_dimension_rows"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is implemented by concrete metric systems.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil backend restores the no-op default.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind (read, resolved, dropped,
// inserted, failed). Non-positive deltas are ignored.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatch counts one fact batch with its outcome (committed or failed).
func RecordBatch(job, outcome string) {
	current().IncCounter(BatchesTotal, 1, Labels{"job": job, "outcome": outcome})
}

// RecordDimension counts rows written to a dimension table.
func RecordDimension(job, table string, rows int64) {
	if rows <= 0 {
		return
	}
	current().IncCounter(DimensionRows, float64(rows), Labels{"job": job, "table": table})
}
