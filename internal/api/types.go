package api

import (
	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/lock"
)

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	RunID         string                       `json:"run_id,omitempty"`
	Status        string                       `json:"status,omitempty"`
	CurrentStep   string                       `json:"current_step"`
	Steps         map[string]StepStateResponse `json:"steps"`
	LastUpdated   string                       `json:"last_updated"`
	Error         string                       `json:"error,omitempty"`
	RowsRead      int64                        `json:"rows_read"`
	FactsInserted int64                        `json:"facts_inserted"`
	RowsDropped   int64                        `json:"rows_dropped"`
	ReportPath    string                       `json:"report_path,omitempty"`
	ReportS3URI   string                       `json:"report_s3_uri,omitempty"`
	LockHeld      bool                         `json:"lock_held"`
	LockOwner     *lock.Owner                  `json:"lock_owner,omitempty"`
	Load          engine.LoadStatus            `json:"load"`
}

// StepStateResponse is one step of the last run.
type StepStateResponse struct {
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// StatsResponse is the response for GET /api/stats.
type StatsResponse = engine.WarehouseStats

// AsyncAcceptedResponse acknowledges a started background operation.
type AsyncAcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ValidationCheckEvent is broadcast for each validation check.
type ValidationCheckEvent struct {
	Table     string `json:"table"`
	CheckType string `json:"check_type"`
	Passed    bool   `json:"passed"`
}

// LoadFinishedEvent is broadcast when a background load returns.
type LoadFinishedEvent struct {
	RunID    string `json:"run_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	JSONPath string `json:"report_path,omitempty"`
}
