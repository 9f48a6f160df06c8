package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/runlog"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.deps.Status != nil {
		st := s.deps.Status.Status()
		resp.Cycle = st.Cycle
		resp.Queued = st.Queued
		resp.Halted = st.Halted
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no run in progress")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Status.Status())
}

// handlePlan handles GET /plan.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	resp := s.deps.Plan
	resp.Pending = []string{}
	if s.deps.Status != nil {
		for _, t := range s.deps.Status.Pending() {
			resp.Pending = append(resp.Pending, t.String())
		}
	}
	if resp.Tasks == nil {
		resp.Tasks = []string{}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleRecovery handles POST /recovery. The engine must be waiting on a
// decision; otherwise the request conflicts with the run's state.
func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recovery == nil {
		s.writeError(w, http.StatusServiceUnavailable, "recovery decisions are not taken over the API")
		return
	}

	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d := operator.Parse(req.Decision)
	if !d.Valid() {
		s.writeError(w, http.StatusBadRequest, "decision must be one of: resume, restart, home")
		return
	}
	if !s.deps.Recovery.Waiting() {
		s.writeError(w, http.StatusConflict, "controller is not waiting for a recovery decision")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.SubmitTimeout)
	defer cancel()
	if err := s.deps.Recovery.Submit(ctx, d); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusConflict, "engine stopped waiting before the decision was taken")
			return
		}
		s.logger.Error("failed to submit recovery decision", "decision", d.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit decision")
		return
	}

	s.logger.Info("recovery decision submitted", "decision", d.String(),
		"request_id", middleware.GetReqID(r.Context()))
	respondJSON(w, http.StatusAccepted, RecoveryResponse{Decision: d.String()})
}

// handleListRuns handles GET /runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}

	runs, err := s.deps.Runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse(run))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetRun handles GET /runs/{runID}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}

	run, err := s.deps.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, runlog.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, runResponse(*run))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
