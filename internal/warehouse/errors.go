package warehouse

import "fmt"

// Load phases.
const (
	PhaseSchema     = "schema"
	PhaseDimensions = "dimensions"
	PhaseKeys       = "keys"
	PhaseFacts      = "facts"
	PhaseStats      = "stats"
)

// PhaseError is a fatal load failure tagged with the phase it occurred in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// BatchError describes one fact batch that failed to commit.
type BatchError struct {
	Batch int    `json:"batch" yaml:"batch"`
	Rows  int    `json:"rows" yaml:"rows"`
	Err   string `json:"error" yaml:"error"`
}
