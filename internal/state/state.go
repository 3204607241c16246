package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starload/starload/internal/config"
)

const DefaultPath = "~/.starload/state.yaml"

// Step is one stage of a load run.
type Step string

const (
	StepExtract    Step = "extract"
	StepProcess    Step = "process"
	StepSchema     Step = "schema"
	StepDimensions Step = "dimensions"
	StepFacts      Step = "facts"
	StepReport     Step = "report"
	StepComplete   Step = "complete"
)

// Steps lists the stages in run order.
var Steps = []Step{StepExtract, StepProcess, StepSchema, StepDimensions, StepFacts, StepReport}

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// State records the progress and outcome of the most recent load run.
type State struct {
	CurrentStep Step               `yaml:"current_step"`
	LastUpdated time.Time          `yaml:"last_updated"`
	Steps       map[Step]StepState `yaml:"steps,omitempty"`

	RunID         string    `yaml:"run_id,omitempty"`
	StartedAt     time.Time `yaml:"started_at,omitempty"`
	Status        string    `yaml:"status,omitempty"`
	Error         string    `yaml:"error,omitempty"`
	Dataset       string    `yaml:"dataset,omitempty"`
	WarehouseType string    `yaml:"warehouse_type,omitempty"`
	RowsRead      int64     `yaml:"rows_read,omitempty"`
	FactsInserted int64     `yaml:"facts_inserted,omitempty"`
	RowsDropped   int64     `yaml:"rows_dropped,omitempty"`
	ReportPath    string    `yaml:"report_path,omitempty"`
	ReportS3URI   string    `yaml:"report_s3_uri,omitempty"`
}

// StepState tracks the state of a single step.
type StepState struct {
	Status      string    `yaml:"status"` // in_progress, complete, failed
	CompletedAt time.Time `yaml:"completed_at,omitempty"`
}

// Load reads run state from disk. A missing file yields a fresh state.
func Load(path string) (*State, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Steps == nil {
		s.Steps = make(map[Step]StepState)
	}
	return s, nil
}

// Save writes run state to disk.
func (s *State) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// New creates a fresh state with no run recorded.
func New() *State {
	return &State{
		CurrentStep: StepExtract,
		LastUpdated: time.Now(),
		Steps:       make(map[Step]StepState),
	}
}

// BeginRun resets the state for a new run.
func (s *State) BeginRun(runID, dataset, warehouseType string) {
	*s = *New()
	s.RunID = runID
	s.StartedAt = time.Now()
	s.Status = StatusRunning
	s.Dataset = dataset
	s.WarehouseType = warehouseType
}

// StartStep marks step as in progress.
func (s *State) StartStep(step Step) {
	s.CurrentStep = step
	s.Steps[step] = StepState{Status: "in_progress"}
}

// CompleteStep marks a step as complete and advances to the next.
func (s *State) CompleteStep(step Step, next Step) {
	s.Steps[step] = StepState{
		Status:      "complete",
		CompletedAt: time.Now(),
	}
	s.CurrentStep = next
}

// FailStep marks the current step and the run as failed.
func (s *State) FailStep(step Step, err error) {
	s.Steps[step] = StepState{Status: "failed", CompletedAt: time.Now()}
	s.CurrentStep = step
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
}

// IsStepComplete returns true if the given step has been completed.
func (s *State) IsStepComplete(step Step) bool {
	ss, ok := s.Steps[step]
	return ok && ss.Status == "complete"
}
