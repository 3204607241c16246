package engine

import (
	"context"
	"errors"

	"github.com/starload/starload/internal/report"
	"github.com/starload/starload/internal/warehouse"
)

// ErrLoadRunning is returned by StartLoad while a background load is active.
var ErrLoadRunning = errors.New("a load is already running")

// LoadStatus is a snapshot of the background load.
type LoadStatus struct {
	Running  bool               `json:"running"`
	RunID    string             `json:"run_id,omitempty"`
	Progress warehouse.Progress `json:"progress"`
	Error    string             `json:"error,omitempty"`
	Report   *report.LoadReport `json:"report,omitempty"`
}

type background struct {
	running  bool
	runID    string
	progress warehouse.Progress
	err      error
}

// StartLoad runs Load in a background goroutine. onProgress and onDone may be
// nil; onDone is called once the load returns.
func (e *Engine) StartLoad(ctx context.Context, onProgress warehouse.ProgressFunc, onDone func(*LoadResult, error)) error {
	e.mu.Lock()
	if e.bg.running {
		e.mu.Unlock()
		return ErrLoadRunning
	}
	e.bg = background{running: true}
	e.mu.Unlock()

	go func() {
		res, err := e.Load(context.WithoutCancel(ctx), LoadOptions{
			Progress: func(p warehouse.Progress) {
				e.mu.Lock()
				e.bg.progress = p
				e.mu.Unlock()
				if onProgress != nil {
					onProgress(p)
				}
			},
		})

		e.mu.Lock()
		e.bg.running = false
		e.bg.err = err
		if res != nil {
			e.bg.runID = res.RunID
		}
		e.mu.Unlock()

		if err != nil {
			e.Logger.Error("background load failed", "error", err)
		}
		if onDone != nil {
			onDone(res, err)
		}
	}()
	return nil
}

// LoadStatus returns the state of the most recent background load.
func (e *Engine) LoadStatus() LoadStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := LoadStatus{
		Running:  e.bg.running,
		RunID:    e.bg.runID,
		Progress: e.bg.progress,
		Report:   e.lastReport,
	}
	if e.bg.err != nil {
		s.Error = e.bg.err.Error()
	}
	return s
}
