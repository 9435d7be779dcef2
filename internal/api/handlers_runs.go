package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dgallion1/papergest/internal/exam"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

var errNoBody = errors.New("request body is required")

// handleSubmitRun queues an acquire-and-extract run.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errNoBody
		}
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.orchestrator.Submit(req)
	switch {
	case exam.IsKind(err, exam.KindInvalidRequest):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	snap := run.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/runs/%s", snap.ID),
	})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	run := s.orchestrator.GetRun(chi.URLParam(r, "runID"))
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}
