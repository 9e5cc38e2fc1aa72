package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/medcircle-hub/medcircle-match-engine/internal/application/command"
	"github.com/medcircle-hub/medcircle-match-engine/internal/application/query"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// requireOperator authenticates the operator headers against the
// configured bcrypt key hashes and stores the operator id in context.
func (s *Server) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID := r.Header.Get(s.config.OperatorIDHeader)
		key := r.Header.Get(s.config.OperatorKeyHeader)

		if operatorID == "" || key == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "operator credentials required")
			return
		}

		hash, ok := s.config.OperatorKeys[operatorID]
		if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			s.logger.Warn("operator authentication failed",
				logger.OperatorID(operatorID),
				logger.String("ip", getClientIP(r)),
			)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid operator credentials")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyOperatorID, operatorID)
		next(w, r.WithContext(ctx))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// forceRunRequest is the body of POST /api/v1/runs.
type forceRunRequest struct {
	// Week - target ISO week (e.g. "2026-W35"). Empty means current.
	Week string `json:"week,omitempty"`
}

// forceRunResponse is the answer to a forced trigger.
type forceRunResponse struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
	Status  string `json:"status"`
	Week    string `json:"week,omitempty"`
}

// handleForceRun triggers a forced batch run. The handler blocks until
// the run reaches a terminal state, so WriteTimeout bounds the caller's
// wait, not the run itself.
func (s *Server) handleForceRun(w http.ResponseWriter, r *http.Request) {
	// An empty body means "current week".
	var req forceRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	cmd := command.RunBatchCommand{
		Week:          matching.WeekID(req.Week),
		Forced:        true,
		OperatorID:    getOperatorID(r.Context()),
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.RunBatchHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, forceRunResponse{
		RunID:   result.RunID,
		Outcome: string(result.Outcome),
		Status:  string(result.Status),
		Week:    req.Week,
	})
}

// handleGetRunSummary serves GET /api/v1/runs/summary.
// Query parameters: run_id, week, include_groups.
func (s *Server) handleGetRunSummary(w http.ResponseWriter, r *http.Request) {
	q := query.GetRunSummaryQuery{
		RunID:         r.URL.Query().Get("run_id"),
		Week:          matching.WeekID(r.URL.Query().Get("week")),
		IncludeGroups: getQueryParamBool(r, "include_groups"),
	}

	summary, err := s.deps.GetRunSummaryHandler.Handle(r.Context(), q)
	if err != nil {
		switch {
		case shared.IsNotFound(err):
			writeJSONError(w, http.StatusNotFound, "not_found", "no run found for the given id or week")
		case shared.IsValidation(err):
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Error("run summary query failed", logger.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "failed to load run summary")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, summary)
}

// writeCommandError maps trigger failures to HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matching.ErrRunInProgress):
		writeJSONError(w, http.StatusConflict, "run_in_progress", "a run for this week is already executing")
	case errors.Is(err, matching.ErrInvalidWeekID):
		writeJSONError(w, http.StatusBadRequest, "invalid_week", "week must be an ISO week identifier like 2026-W35")
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("forced run failed", logger.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "run execution failed")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// healthStatus is the body of /health and /ready.
type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleLive always answers 200 while the process is up.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthStatus{Status: "alive"})
}

// handleHealth reports overall process health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthStatus{Status: "ok"})
}

// handleReady pings every dependency; any failure flips readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.HealthCheckers))
	healthy := true

	for _, checker := range s.deps.HealthCheckers {
		if err := checker.Check(ctx); err != nil {
			checks[checker.Name()] = err.Error()
			healthy = false
		} else {
			checks[checker.Name()] = "ok"
		}
	}

	status := http.StatusOK
	body := healthStatus{Status: "ready", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body.Status = "degraded"
	}

	writeJSON(w, r, status, body)
}
