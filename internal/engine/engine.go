package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starload/starload/internal/aws"
	"github.com/starload/starload/internal/config"
	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/lock"
	"github.com/starload/starload/internal/processing"
	"github.com/starload/starload/internal/report"
	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/state"
	"github.com/starload/starload/internal/validation"
	"github.com/starload/starload/internal/warehouse"
	"github.com/starload/starload/internal/warehouse/mongo"
	"github.com/starload/starload/internal/warehouse/postgres"
	"github.com/starload/starload/internal/warehouse/sqlstore"
)

// Engine runs starload operations from a loaded config. It is shared by the
// CLI commands and the TUI.
type Engine struct {
	Config *config.Config
	State  *state.State
	Logger *slog.Logger

	statePath string
	lockPath  string

	// Replaced in tests.
	openStore func(ctx context.Context) (warehouse.Store, error)
	newAWS    func(ctx context.Context) (aws.Client, error)

	mu         sync.Mutex
	loadCancel context.CancelFunc
	lastReport *report.LoadReport
	bg         background
}

// New creates a new Engine with the given config and logger.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Config:    cfg,
		Logger:    logger,
		statePath: config.ExpandHome(state.DefaultPath),
		lockPath:  config.ExpandHome(lock.DefaultPath),
	}
	e.openStore = e.defaultOpenStore
	e.newAWS = func(ctx context.Context) (aws.Client, error) {
		return aws.NewRealClient(ctx, cfg.AWS.Profile, cfg.AWS.Region)
	}
	return e
}

// LoadState loads run state from disk.
func (e *Engine) LoadState() (*state.State, error) {
	st, err := state.Load(e.statePath)
	if err != nil {
		return nil, err
	}
	e.State = st
	return st, nil
}

// SaveState persists the current run state to disk.
func (e *Engine) SaveState() error {
	if e.State == nil {
		return fmt.Errorf("no state to save")
	}
	return e.State.Save(e.statePath)
}

// Catalog returns the star schema for the configured schema name. SQLite
// ignores the name; MongoDB uses it as the database.
func (e *Engine) Catalog() *schema.Catalog {
	return schema.StarSchema(e.Config.Warehouse.Schema)
}

// OpenStore connects to the configured warehouse.
func (e *Engine) OpenStore(ctx context.Context) (warehouse.Store, error) {
	return e.openStore(ctx)
}

func (e *Engine) defaultOpenStore(ctx context.Context) (warehouse.Store, error) {
	w := e.Config.Warehouse
	catalog := e.Catalog()
	dsn := w.DSN()

	switch w.Type {
	case "postgresql":
		return postgres.Open(ctx, dsn, catalog, e.Logger)
	case "mysql":
		return sqlstore.Open(ctx, schema.DialectMySQL, dsn, catalog, e.Logger)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating warehouse directory: %w", err)
		}
		return sqlstore.Open(ctx, schema.DialectSQLite, dsn, catalog, e.Logger)
	case "mongodb":
		return mongo.Open(ctx, dsn, catalog, w.TransactionsEnabled(), e.Logger)
	default:
		return nil, fmt.Errorf("unsupported warehouse type %q", w.Type)
	}
}

// TestConnection opens and closes the warehouse.
func (e *Engine) TestConnection(ctx context.Context) error {
	store, err := e.OpenStore(ctx)
	if err != nil {
		return err
	}
	return store.Close(ctx)
}

// Prepared is a dataset read and cleaned, ready to load.
type Prepared struct {
	Rows       []schema.TransactionRow
	Dataset    report.DatasetSummary
	Profile    *processing.Profile
	Processing *processing.Stats
}

// Prepare reads the configured dataset, profiles it and runs processing.
func (e *Engine) Prepare(ctx context.Context) (*Prepared, error) {
	raw, err := e.extract(ctx)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, raw)
}

func (e *Engine) extract(ctx context.Context) (*dataset.Result, error) {
	ds := e.Config.Dataset

	opts := dataset.OpenOptions{
		HTTPRetries: ds.HTTPRetries,
		Logger:      e.Logger,
	}
	if aws.IsS3URI(ds.Location) {
		client, err := e.newAWS(ctx)
		if err != nil {
			return nil, err
		}
		opts.S3 = client
	}

	rc, err := dataset.Open(ctx, ds.Location, opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := dataset.Read(ctx, rc, ds.Encoding, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ds.Location, err)
	}
	return raw, nil
}

func (e *Engine) process(ctx context.Context, raw *dataset.Result) (*Prepared, error) {
	rows, stats, err := processing.Process(ctx, raw.Rows, processing.Options{
		SkipImputation:  e.Config.Processing.SkipImputation,
		SkipOutlierFlag: e.Config.Processing.SkipOutlierFlag,
		KeepDuplicates:  e.Config.Processing.KeepDuplicates,
		Job:             e.Config.Metrics.Job,
	}, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("processing dataset: %w", err)
	}

	return &Prepared{
		Rows: rows,
		Dataset: report.DatasetSummary{
			Location: e.Config.Dataset.Location,
			Encoding: e.Config.Dataset.Encoding,
			Rows:     len(raw.Rows),
			Skipped:  raw.Skipped,
		},
		Profile:    processing.ProfileRaw(raw.Rows),
		Processing: stats,
	}, nil
}

// LoaderOptions converts the load config into warehouse options.
func (e *Engine) LoaderOptions() warehouse.Options {
	return warehouse.Options{
		BatchSize:    e.Config.Load.BatchSize,
		OnBatchError: warehouse.BatchErrorPolicy(e.Config.Load.OnBatchError),
		ReplaceFacts: e.Config.Load.ReplaceFactsEnabled(),
		Job:          e.Config.Metrics.Job,
	}
}

// Plan prepares the dataset and reports what a load would write, without
// connecting to the warehouse.
func (e *Engine) Plan(ctx context.Context) (*warehouse.Plan, *Prepared, error) {
	prep, err := e.Prepare(ctx)
	if err != nil {
		return nil, nil, err
	}
	loader := warehouse.NewLoader(nil, e.LoaderOptions(), e.Logger)
	return loader.Plan(prep.Rows), prep, nil
}

// WarehouseStats is what the warehouse currently holds.
type WarehouseStats struct {
	Counts          *warehouse.Counts            `json:"counts"`
	Orphans         map[string]int64             `json:"orphans"`
	Consistency     *validation.ConsistencyCheck `json:"consistency"`
	Insights        *warehouse.Insights          `json:"insights"`
	Recommendations []string                     `json:"recommendations,omitempty"`
}

// Stats returns row counts, orphaned facts, negative-value counts and the
// sales insights currently in the warehouse.
func (e *Engine) Stats(ctx context.Context) (*WarehouseStats, error) {
	store, err := e.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	st := &WarehouseStats{}
	if st.Counts, err = store.Counts(ctx); err != nil {
		return nil, err
	}
	if st.Orphans, err = store.OrphanCounts(ctx); err != nil {
		return nil, err
	}
	c, err := store.Consistency(ctx)
	if err != nil {
		return nil, err
	}
	st.Consistency = validation.NewConsistencyCheck(c)
	if st.Insights, err = store.Insights(ctx, warehouse.InsightsLimit); err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	st.Recommendations = validation.Recommendations(nil, st.Consistency)
	return st, nil
}

// Validate checks the warehouse. With withDataset set, the dataset is
// re-read and planned so row counts can be compared; otherwise only
// referential integrity is checked.
func (e *Engine) Validate(ctx context.Context, withDataset bool, callback func(table, check string, passed bool)) (*validation.Result, error) {
	var expected *validation.Expectation
	if withDataset {
		plan, _, err := e.Plan(ctx)
		if err != nil {
			return nil, err
		}
		expected = validation.ExpectationFromPlan(plan, e.Config.Load.ReplaceFactsEnabled())
	}

	store, err := e.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	v := &validation.Validator{
		Store:    store,
		Catalog:  e.Catalog(),
		Expected: expected,
		Callback: callback,
	}
	return v.Validate(ctx)
}

// Reset drops every warehouse table, staging tables included.
func (e *Engine) Reset(ctx context.Context) error {
	if err := lock.Acquire(e.lockPath, "reset"); err != nil {
		return err
	}
	defer lock.Release(e.lockPath)

	store, err := e.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if err := store.Drop(ctx); err != nil {
		return fmt.Errorf("dropping warehouse: %w", err)
	}
	if st, ok := store.(warehouse.Stager); ok {
		if err := st.DropStaging(ctx, schema.StagingSchema(e.Config.Warehouse.Schema)); err != nil {
			return fmt.Errorf("dropping staging tables: %w", err)
		}
	}
	e.Logger.Info("warehouse dropped", "type", e.Config.Warehouse.Type, "schema", e.Config.Warehouse.Schema)
	return nil
}

// Status reports the last run and whether a run is in progress.
type Status struct {
	State   *state.State
	Running bool
	Owner   *lock.Owner
}

// Status reads the run state and the lock owner from disk. It leaves
// e.State alone so it is safe to call while a background load runs.
func (e *Engine) Status() (*Status, error) {
	st, err := state.Load(e.statePath)
	if err != nil {
		return nil, err
	}
	held, owner, err := lock.IsHeld(e.lockPath)
	if err != nil {
		return nil, fmt.Errorf("checking lock: %w", err)
	}
	return &Status{State: st, Running: held, Owner: owner}, nil
}

// AbortLoad cancels a load started by Load in this process.
func (e *Engine) AbortLoad() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadCancel == nil {
		return errors.New("no load in progress")
	}
	e.loadCancel()
	return nil
}

// LastReport returns the report of the most recent Load call.
func (e *Engine) LastReport() *report.LoadReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}
