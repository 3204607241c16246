package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/starload/starload/internal/dimension"
	"github.com/starload/starload/internal/fact"
	"github.com/starload/starload/internal/metrics"
	"github.com/starload/starload/internal/schema"
)

// DefaultBatchSize is the number of facts committed per unit of work.
const DefaultBatchSize = 1000

// BatchErrorPolicy decides what happens after a fact batch fails to commit.
type BatchErrorPolicy string

const (
	// ContinueOnBatchError logs the failed batch and loads the rest.
	ContinueOnBatchError BatchErrorPolicy = "continue"
	// AbortOnBatchError stops the load. Batches already committed stay.
	AbortOnBatchError BatchErrorPolicy = "abort"
)

// Options control batching and failure handling.
type Options struct {
	BatchSize    int
	OnBatchError BatchErrorPolicy
	// ReplaceFacts clears the fact table inside the dimension unit of work, so
	// a rerun reloads the dataset instead of appending to it.
	ReplaceFacts bool
	// Job labels emitted metrics.
	Job string
}

// Loader sequences a star-schema load: dimensions in one unit of work, then
// facts in independently committed batches.
type Loader struct {
	store    Store
	opts     Options
	logger   *slog.Logger
	progress ProgressFunc
}

// NewLoader creates a loader writing to store.
func NewLoader(store Store, opts Options, logger *slog.Logger) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.OnBatchError == "" {
		opts.OnBatchError = ContinueOnBatchError
	}
	if opts.Job == "" {
		opts.Job = "starload"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, opts: opts, logger: logger}
}

// OnProgress registers a progress callback.
func (l *Loader) OnProgress(fn ProgressFunc) {
	l.progress = fn
}

// Load writes rows to the warehouse. The returned summary is non-nil even on
// error and describes whatever was completed. Fatal failures are returned as
// *PhaseError; per-row resolution misses and, under ContinueOnBatchError,
// failed fact batches are reported in the summary instead.
func (l *Loader) Load(ctx context.Context, rows []schema.TransactionRow) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		InputRows: int64(len(rows)),
	}
	prog := Progress{Phase: PhaseSchema}
	finish := func(err error) (*Summary, error) {
		sum.Duration = time.Since(start).Round(time.Millisecond).String()
		if err != nil {
			prog.Errors = append(prog.Errors, err.Error())
		}
		l.notify(prog)
		return sum, err
	}

	log := l.logger.With("run_id", sum.RunID)
	log.Info("starting warehouse load", "rows", len(rows), "batch_size", l.opts.BatchSize)
	metrics.RecordRows(l.opts.Job, "read", int64(len(rows)))
	l.notify(prog)

	if err := l.step(PhaseSchema, func() error { return l.store.EnsureSchema(ctx) }); err != nil {
		return finish(&PhaseError{Phase: PhaseSchema, Err: err})
	}

	dims := dimension.Build(rows)
	prog.Phase = PhaseDimensions
	l.notify(prog)
	if err := l.step(PhaseDimensions, func() error { return l.loadDimensions(ctx, dims) }); err != nil {
		log.Error("dimension load rolled back", "error", err)
		return finish(&PhaseError{Phase: PhaseDimensions, Err: err})
	}
	sum.DimensionRowsWritten = dims.Counts()
	for table, n := range sum.DimensionRowsWritten {
		metrics.RecordDimension(l.opts.Job, table, n)
	}
	log.Info("dimensions loaded",
		"customers", len(dims.Customers), "dates", len(dims.Dates),
		"products", len(dims.Products), "countries", len(dims.Countries))

	prog.Phase = PhaseKeys
	l.notify(prog)
	var maps *fact.KeyMaps
	if err := l.step(PhaseKeys, func() error {
		persisted, err := l.store.ReadDimensions(ctx)
		if err != nil {
			return fmt.Errorf("reading dimension keys: %w", err)
		}
		maps = fact.NewKeyMaps(persisted)
		return nil
	}); err != nil {
		return finish(&PhaseError{Phase: PhaseKeys, Err: err})
	}

	res := fact.Resolve(rows, maps)
	sum.FactsResolved = int64(len(res.Facts))
	sum.RowsDropped = int64(len(res.Drops))
	sum.DropsByReason = res.DropsByReason()
	metrics.RecordRows(l.opts.Job, "resolved", sum.FactsResolved)
	metrics.RecordRows(l.opts.Job, "dropped", sum.RowsDropped)
	if sum.RowsDropped > 0 {
		log.Warn("rows dropped with unresolved dimension keys",
			"dropped", sum.RowsDropped, "by_missing_key", sum.DropsByReason)
	}

	prog.Phase = PhaseFacts
	prog.FactsTotal = sum.FactsResolved
	prog.RowsDropped = sum.RowsDropped
	if err := l.step(PhaseFacts, func() error { return l.loadFacts(ctx, res.Facts, sum, &prog, log) }); err != nil {
		return finish(&PhaseError{Phase: PhaseFacts, Err: err})
	}

	prog.Phase = PhaseStats
	l.notify(prog)
	counts, err := l.store.Counts(ctx)
	if err != nil {
		return finish(&PhaseError{Phase: PhaseStats, Err: err})
	}
	sum.Store = counts

	log.Info("warehouse load finished",
		"facts_inserted", sum.FactsInserted,
		"rows_dropped", sum.RowsDropped,
		"batches_failed", sum.BatchesFailed,
		"fact_rows", counts.Facts)
	return finish(nil)
}

// loadDimensions writes all dimension rows in a single unit of work.
func (l *Loader) loadDimensions(ctx context.Context, dims schema.Dimensions) (err error) {
	uow, err := l.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning dimension unit of work: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := uow.Rollback(ctx); rbErr != nil {
				l.logger.Error("rolling back dimensions", "error", rbErr)
			}
		}
	}()

	if l.opts.ReplaceFacts {
		if err := uow.ResetFacts(ctx); err != nil {
			return fmt.Errorf("clearing facts: %w", err)
		}
	}
	if err := uow.UpsertCustomers(ctx, dims.Customers); err != nil {
		return fmt.Errorf("upserting customers: %w", err)
	}
	if err := uow.UpsertDates(ctx, dims.Dates); err != nil {
		return fmt.Errorf("upserting dates: %w", err)
	}
	if err := uow.UpsertProducts(ctx, dims.Products); err != nil {
		return fmt.Errorf("upserting products: %w", err)
	}
	if err := uow.UpsertCountries(ctx, dims.Countries); err != nil {
		return fmt.Errorf("upserting countries: %w", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("committing dimensions: %w", err)
	}
	return nil
}

// loadFacts commits facts in fixed-size batches, one unit of work each.
func (l *Loader) loadFacts(ctx context.Context, facts []schema.FactSales, sum *Summary, prog *Progress, log *slog.Logger) error {
	batches := lo.Chunk(facts, l.opts.BatchSize)
	prog.BatchesTotal = len(batches)
	l.notify(*prog)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("load cancelled after %d batches: %w", i, err)
		}

		n, err := l.commitBatch(ctx, batch)
		prog.BatchesDone++
		if err != nil {
			sum.BatchesFailed++
			sum.FactsFailed += int64(len(batch))
			sum.BatchErrors = append(sum.BatchErrors, BatchError{Batch: i + 1, Rows: len(batch), Err: err.Error()})
			prog.Errors = append(prog.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
			metrics.RecordBatch(l.opts.Job, "failed")
			metrics.RecordRows(l.opts.Job, "failed", int64(len(batch)))
			log.Error("fact batch failed", "batch", i+1, "rows", len(batch), "error", err)
			l.notify(*prog)

			if l.opts.OnBatchError == AbortOnBatchError {
				return fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
			}
			continue
		}

		sum.BatchesCommitted++
		sum.FactsInserted += n
		prog.FactsInserted += n
		metrics.RecordBatch(l.opts.Job, "committed")
		metrics.RecordRows(l.opts.Job, "inserted", n)
		log.Debug("fact batch committed", "batch", i+1, "rows", n, "inserted_total", sum.FactsInserted)
		l.notify(*prog)
	}
	return nil
}

func (l *Loader) commitBatch(ctx context.Context, batch []schema.FactSales) (n int64, err error) {
	uow, err := l.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning fact unit of work: %w", err)
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback(ctx)
		}
	}()

	n, err = uow.InsertFacts(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("inserting facts: %w", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing facts: %w", err)
	}
	return n, nil
}

// Stats reads the current warehouse row counts.
func (l *Loader) Stats(ctx context.Context) (*Counts, error) {
	counts, err := l.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading warehouse counts: %w", err)
	}
	return counts, nil
}

func (l *Loader) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(l.opts.Job, name, err, time.Since(start))
	return err
}

func (l *Loader) notify(p Progress) {
	if l.progress != nil {
		l.progress(p)
	}
}
