package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starload/starload/internal/aws"
	"github.com/starload/starload/internal/dataset"
	"github.com/starload/starload/internal/lock"
	"github.com/starload/starload/internal/report"
	"github.com/starload/starload/internal/schema"
	"github.com/starload/starload/internal/staging"
	"github.com/starload/starload/internal/state"
	"github.com/starload/starload/internal/validation"
	"github.com/starload/starload/internal/warehouse"
)

// LoadOptions configures a single Load call.
type LoadOptions struct {
	// DryRun prepares the dataset and plans the load without opening the
	// warehouse.
	DryRun bool
	// Progress receives loader progress. It is called from the loading
	// goroutine.
	Progress warehouse.ProgressFunc
}

// LoadResult is the outcome of a Load call.
type LoadResult struct {
	RunID      string
	Plan       *warehouse.Plan
	Summary    *warehouse.Summary
	Validation *validation.Result
	Report     *report.LoadReport
	JSONPath   string
	TextPath   string
	Upload     *aws.UploadResult
}

// Load runs extract, process, warehouse load, validation and reporting. Run
// state is saved after every step and a lock keeps concurrent loads out.
//
// A load that drops rows or loses fact batches still returns a nil error;
// its report status is "partial".
func (e *Engine) Load(ctx context.Context, opts LoadOptions) (*LoadResult, error) {
	if opts.DryRun {
		plan, _, err := e.Plan(ctx)
		if err != nil {
			return nil, err
		}
		return &LoadResult{Plan: plan}, nil
	}

	if err := lock.Acquire(e.lockPath, "load"); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(e.lockPath); err != nil {
			e.Logger.Warn("releasing load lock", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.loadCancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.loadCancel = nil
		e.mu.Unlock()
		cancel()
	}()

	if _, err := e.LoadState(); err != nil {
		return nil, err
	}
	res := &LoadResult{RunID: newRunID()}
	log := e.Logger.With("run_id", res.RunID)
	e.State.BeginRun(res.RunID, e.Config.Dataset.Location, e.Config.Warehouse.Type)
	e.saveState()

	in := report.Input{
		Dataset:   report.DatasetSummary{Location: e.Config.Dataset.Location, Encoding: e.Config.Dataset.Encoding},
		Warehouse: report.WarehouseSummary{Type: e.Config.Warehouse.Type, Schema: e.Config.Warehouse.Schema},
	}

	runErr := e.runLoad(ctx, res, &in, opts.Progress)
	if runErr != nil {
		log.Error("load failed", "step", e.State.CurrentStep, "error", runErr)
	}
	in.Err = runErr

	e.State.StartStep(state.StepReport)
	e.saveState()
	if err := e.writeReport(ctx, res, in); err != nil {
		log.Error("writing report", "error", err)
		e.State.FailStep(state.StepReport, err)
		e.saveState()
		return res, errors.Join(runErr, err)
	}

	if runErr == nil {
		e.State.CompleteStep(state.StepReport, state.StepComplete)
	}
	e.State.Status = res.Report.Status
	e.saveState()

	log.Info("load run finished", "status", res.Report.Status, "report", res.JSONPath)
	return res, runErr
}

// runLoad executes the steps up to and including validation, recording each
// in run state.
func (e *Engine) runLoad(ctx context.Context, res *LoadResult, in *report.Input, progress warehouse.ProgressFunc) error {
	e.State.StartStep(state.StepExtract)
	e.saveState()
	raw, err := e.extract(ctx)
	if err != nil {
		e.State.FailStep(state.StepExtract, err)
		return fmt.Errorf("extract: %w", err)
	}
	e.State.RowsRead = int64(len(raw.Rows))
	e.State.CompleteStep(state.StepExtract, state.StepProcess)
	e.saveState()

	prep, err := e.process(ctx, raw)
	if err != nil {
		e.State.FailStep(state.StepProcess, err)
		return err
	}
	in.Dataset = prep.Dataset
	in.Profile = prep.Profile
	in.Processing = prep.Processing
	in.Completeness = validation.MeasureCompleteness(prep.Rows)
	e.State.CompleteStep(state.StepProcess, state.StepSchema)
	e.saveState()

	store, err := e.OpenStore(ctx)
	if err != nil {
		e.State.FailStep(state.StepSchema, err)
		return fmt.Errorf("opening warehouse: %w", err)
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			e.Logger.Warn("closing warehouse", "error", err)
		}
	}()

	if e.Config.Staging.Enabled {
		if err := e.stage(ctx, store, raw.Rows, prep.Rows, res.RunID); err != nil {
			e.State.FailStep(state.StepSchema, err)
			return err
		}
	}

	loader := warehouse.NewLoader(store, e.LoaderOptions(), e.Logger.With("run_id", res.RunID))
	loader.OnProgress(func(p warehouse.Progress) {
		e.trackPhase(p.Phase)
		if progress != nil {
			progress(p)
		}
	})

	sum, err := loader.Load(ctx, prep.Rows)
	res.Summary = sum
	in.Load = sum
	if sum != nil {
		e.State.FactsInserted = sum.FactsInserted
		e.State.RowsDropped = sum.RowsDropped
	}
	if err != nil {
		var pe *warehouse.PhaseError
		step := state.StepFacts
		if errors.As(err, &pe) {
			step = stepForPhase(pe.Phase)
		}
		e.State.FailStep(step, err)
		return err
	}
	e.State.CompleteStep(state.StepFacts, state.StepReport)
	e.saveState()

	v := &validation.Validator{
		Store:   store,
		Catalog: e.Catalog(),
		Expected: &validation.Expectation{
			Dimensions: sum.DimensionRowsWritten,
			Facts:      sum.FactsInserted,
			ExactFacts: e.Config.Load.ReplaceFactsEnabled(),
		},
	}
	vr, err := v.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validating warehouse: %w", err)
	}
	res.Validation = vr
	in.Validation = vr

	insights, err := store.Insights(ctx, warehouse.InsightsLimit)
	if err != nil {
		e.Logger.Warn("querying insights", "run_id", res.RunID, "error", err)
		return nil
	}
	in.Insights = insights
	return nil
}

// stage replaces the raw_data and processed_data tables ahead of the star
// schema load.
func (e *Engine) stage(ctx context.Context, store warehouse.Store, raw []dataset.RawRow, rows []schema.TransactionRow, runID string) error {
	st, ok := store.(warehouse.Stager)
	if !ok {
		return fmt.Errorf("staging: %s warehouse does not support staging tables", e.Config.Warehouse.Type)
	}
	w := &staging.Writer{
		Store:   st,
		Catalog: schema.StagingSchema(e.Config.Warehouse.Schema),
		Logger:  e.Logger.With("run_id", runID),
	}
	if err := w.Write(ctx, raw, rows); err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	return nil
}

// trackPhase mirrors loader phases into run state.
func (e *Engine) trackPhase(phase string) {
	step := stepForPhase(phase)
	if ss, ok := e.State.Steps[step]; ok && ss.Status == "in_progress" {
		return
	}
	for _, s := range []state.Step{state.StepSchema, state.StepDimensions} {
		if s == step {
			break
		}
		if !e.State.IsStepComplete(s) {
			e.State.CompleteStep(s, step)
		}
	}
	e.State.StartStep(step)
	e.saveState()
}

func stepForPhase(phase string) state.Step {
	switch phase {
	case warehouse.PhaseSchema:
		return state.StepSchema
	case warehouse.PhaseDimensions:
		return state.StepDimensions
	default:
		return state.StepFacts
	}
}

func (e *Engine) writeReport(ctx context.Context, res *LoadResult, in report.Input) error {
	res.Report = report.GenerateReport(in)

	dir := e.Config.Report.Directory
	res.JSONPath = report.Path(dir, res.RunID, "json")
	res.TextPath = report.Path(dir, res.RunID, "txt")
	if err := report.WriteJSON(res.Report, res.JSONPath); err != nil {
		return err
	}
	if err := report.WriteText(res.Report, res.TextPath); err != nil {
		return err
	}
	e.State.ReportPath = res.JSONPath

	e.mu.Lock()
	e.lastReport = res.Report
	e.mu.Unlock()

	if !e.Config.Report.Upload {
		return nil
	}
	client, err := e.newAWS(ctx)
	if err != nil {
		return fmt.Errorf("creating AWS client: %w", err)
	}
	uploader := aws.NewReportUploader(client, e.Config.AWS.S3Bucket, e.Config.AWS.ReportPrefix)
	up, err := uploader.UploadReports(context.WithoutCancel(ctx), aws.ReportSet{
		RunID:    res.RunID,
		JSONPath: res.JSONPath,
		TextPath: res.TextPath,
	})
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}
	res.Upload = up
	e.State.ReportS3URI = up.JSONS3URI
	return nil
}

func (e *Engine) saveState() {
	if err := e.SaveState(); err != nil {
		e.Logger.Warn("saving run state", "error", err)
	}
}

func newRunID() string {
	return time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}
