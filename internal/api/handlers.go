package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/report"
	"github.com/starload/starload/internal/warehouse"
	"github.com/starload/starload/internal/ws"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status()
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	run := st.State
	resp := StatusResponse{
		RunID:         run.RunID,
		Status:        run.Status,
		CurrentStep:   string(run.CurrentStep),
		Steps:         make(map[string]StepStateResponse, len(run.Steps)),
		LastUpdated:   run.LastUpdated.UTC().Format(time.RFC3339),
		Error:         run.Error,
		RowsRead:      run.RowsRead,
		FactsInserted: run.FactsInserted,
		RowsDropped:   run.RowsDropped,
		ReportPath:    run.ReportPath,
		ReportS3URI:   run.ReportS3URI,
		LockHeld:      st.Running,
		LockOwner:     st.Owner,
		Load:          s.engine.LoadStatus(),
	}
	for step, ss := range run.Steps {
		sr := StepStateResponse{Status: ss.Status}
		if !ss.CompletedAt.IsZero() {
			sr.CompletedAt = ss.CompletedAt.UTC().Format(time.RFC3339)
		}
		resp.Steps[string(step)] = sr
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.engine.Config.Redacted())
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.engine.Catalog())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleStartLoad(w http.ResponseWriter, r *http.Request) {
	onProgress := func(p warehouse.Progress) {
		if s.hub != nil {
			s.hub.BroadcastJSON(ws.MsgLoadProgress, p)
		}
	}
	onDone := func(res *engine.LoadResult, err error) {
		if s.hub == nil {
			return
		}
		ev := LoadFinishedEvent{Status: "failed"}
		if res != nil {
			ev.RunID = res.RunID
			ev.JSONPath = res.JSONPath
			if res.Report != nil {
				ev.Status = res.Report.Status
			}
		}
		if err != nil {
			ev.Error = err.Error()
		}
		s.hub.BroadcastJSON(ws.MsgLoadFinished, ev)
	}

	if err := s.engine.StartLoad(r.Context(), onProgress, onDone); err != nil {
		errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	jsonResponse(w, http.StatusAccepted, AsyncAcceptedResponse{
		Status:  "accepted",
		Message: "Load started",
	})
}

func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.engine.LoadStatus())
}

func (s *Server) handleAbortLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AbortLoad(); err != nil {
		errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "aborting"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	withDataset := r.URL.Query().Get("dataset") == "true"
	callback := func(table, checkType string, passed bool) {
		if s.hub != nil {
			s.hub.BroadcastJSON(ws.MsgValidationCheck, ValidationCheckEvent{
				Table:     table,
				CheckType: checkType,
				Passed:    passed,
			})
		}
	}

	result, err := s.engine.Validate(r.Context(), withDataset, callback)
	if err != nil {
		errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	if rep := s.engine.LastReport(); rep != nil {
		jsonResponse(w, http.StatusOK, rep)
		return
	}

	st, err := s.engine.Status()
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st.State.ReportPath == "" {
		errorResponse(w, http.StatusNotFound, "no report available")
		return
	}
	rep, err := report.ReadJSON(st.State.ReportPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			status = http.StatusNotFound
		}
		errorResponse(w, status, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, rep)
}
