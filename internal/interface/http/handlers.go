package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wellness-escape/vitality-hub/internal/application/command"
	"github.com/wellness-escape/vitality-hub/internal/application/query"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Vitality Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":    "/health",
			"program":   "/api/v1/program",
			"dashboard": "/api/v1/dashboard",
			"week":      "/api/v1/weeks/{weekId}",
			"session":   "/api/v1/sessions/{sessionId}",
		},
	}

	writeJSON(w, r, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// VIEW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgram handles GET /api/v1/program/{programId}
func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	programID := r.PathValue("programId")
	if programID == "" {
		programID = s.config.ProgramID
	}

	view, err := s.deps.Navigator.DescribeProgram(r.Context(), programID, principalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetDashboard handles GET /api/v1/dashboard
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Navigator.Dashboard(r.Context(), principalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetWeek handles GET /api/v1/weeks/{weekId}
// Unknown weeks fall back to the first one.
func (s *Server) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Navigator.DescribeWeek(r.Context(), r.PathValue("weekId"), principalFrom(r.Context()))
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetSession handles GET /api/v1/sessions/{sessionId}
// Unknown sessions fall back to the first one.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Navigator.Describe(r.Context(), r.PathValue("sessionId"), principalFrom(r.Context()))
	writeJSON(w, r, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCompleteSession handles POST /api/v1/sessions/{sessionId}/complete
func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Commands.CompleteSession.Handle(r.Context(), principalFrom(r.Context()), command.CompleteSessionCommand{
		SessionID:     r.PathValue("sessionId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type worksheetRequest struct {
	Answers map[string]string `json:"answers"`
}

// handleSaveWorksheet handles PUT /api/v1/sessions/{sessionId}/worksheet
func (s *Server) handleSaveWorksheet(w http.ResponseWriter, r *http.Request) {
	var req worksheetRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}

	result, err := s.deps.Commands.SaveWorksheet.Handle(r.Context(), principalFrom(r.Context()), command.SaveWorksheetCommand{
		SessionID:     r.PathValue("sessionId"),
		Answers:       req.Answers,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleToggleActionStep handles POST /api/v1/weeks/{weekId}/steps/{index}/toggle
func (s *Server) handleToggleActionStep(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(r, "index")
	if !ok {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "step index must be a non-negative integer")
		return
	}

	result, err := s.deps.Commands.ToggleActionStep.Handle(r.Context(), principalFrom(r.Context()), command.ToggleActionStepCommand{
		WeekID:        r.PathValue("weekId"),
		Index:         index,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type reflectionRequest struct {
	Text string `json:"text"`
}

// handleSaveReflection handles PUT /api/v1/weeks/{weekId}/reflection
func (s *Server) handleSaveReflection(w http.ResponseWriter, r *http.Request) {
	var req reflectionRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}

	result, err := s.deps.Commands.SaveReflection.Handle(r.Context(), principalFrom(r.Context()), command.SaveReflectionCommand{
		WeekID:        r.PathValue("weekId"),
		Text:          req.Text,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleCompleteWeek handles POST /api/v1/weeks/{weekId}/complete
func (s *Server) handleCompleteWeek(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Commands.CompleteWeek.Handle(r.Context(), principalFrom(r.Context()), command.CompleteWeekCommand{
		WeekID:        r.PathValue("weekId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type checkInRequest struct {
	Note string `json:"note"`
}

// handleCheckInHabit handles POST /api/v1/habits/{habitId}/check-ins
func (s *Server) handleCheckInHabit(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}

	result, err := s.deps.Commands.CheckInHabit.Handle(r.Context(), principalFrom(r.Context()), command.CheckInHabitCommand{
		HabitID:       r.PathValue("habitId"),
		Note:          req.Note,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Recorded {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, result)
}

// handleDismissOrientation handles POST /api/v1/orientation/dismiss
func (s *Server) handleDismissOrientation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Commands.DismissOrientation.Handle(r.Context(), principalFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"dismissed": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleResetProgress handles DELETE /api/v1/admin/users/{userId}/progress
func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Commands.ResetProgress.Handle(r.Context(), command.ResetProgressCommand{
		UserID: r.PathValue("userId"),
		Actor:  "api-key",
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type entitlementRequest struct {
	Source string `json:"source"`
}

// handleGrantEntitlement handles PUT /api/v1/admin/users/{userId}/entitlement
func (s *Server) handleGrantEntitlement(w http.ResponseWriter, r *http.Request) {
	var req entitlementRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if req.Source == "" {
		req.Source = "admin"
	}

	user, err := shared.NewUserID(r.PathValue("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Entitlements.Grant(r.Context(), user, req.Source); err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("entitlement granted",
		logger.UserID(user.String()),
		logger.String("source", req.Source),
	)
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"user_id": user, "has_access": true})
}

// handleRevokeEntitlement handles DELETE /api/v1/admin/users/{userId}/entitlement
func (s *Server) handleRevokeEntitlement(w http.ResponseWriter, r *http.Request) {
	user, err := shared.NewUserID(r.PathValue("userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	revoked, err := s.deps.Entitlements.Revoke(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("entitlement revoked",
		logger.UserID(user.String()),
		logger.Bool("changed", revoked),
	)
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"user_id": user, "has_access": false, "changed": revoked})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// UnlockURL is set when the content needs a purchase.
	UnlockURL string `json:"unlock_url,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeResponse(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	writeResponse(w, status, JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

func writeResponse(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsPolicyDenied(err):
		writeAPIError(w, r, http.StatusForbidden, &APIError{
			Code:      "locked",
			Message:   "This content is part of the full program",
			UnlockURL: query.UnlockURL,
		})
	case shared.IsSessionLocked(err):
		writeJSONError(w, r, http.StatusConflict, "session_locked", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Sign in required")
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, progress.ErrResetUnsupported):
		writeJSONError(w, r, http.StatusNotImplemented, "not_supported", err.Error())
	case shared.IsStorage(err):
		logger.FromContext(r.Context()).Error("storage error", logger.Err(err))
		writeJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "Storage is temporarily unavailable")
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err), logger.String("path", r.URL.Path))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// decodeBody reads a JSON body into dst. An empty body is accepted unless required.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, required bool) bool {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && !required:
		return true
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "request body is required")
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("malformed JSON: %v", err))
	}
	return false
}
