package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/session"
)

// Response status values understood by the UI.
const (
	StatusStarted            = "started"
	StatusStopped            = "stopped"
	StatusAlreadyRunning     = "already_running"
	StatusNotRunning         = "not_running"
	StatusErrorWritingSerial = "error_writing_serial"
)

// Controller is the session surface the handlers drive.
type Controller interface {
	Start(ctx context.Context) (session.Status, error)
	Stop(ctx context.Context) (session.Status, error)
	Status() session.Status
}

// SessionHandlers serves the start/stop/status endpoints.
type SessionHandlers struct {
	ctrl   Controller
	logger *zap.Logger
}

// NewSessionHandlers builds handlers.
func NewSessionHandlers(ctrl Controller, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{ctrl: ctrl, logger: logger}
}

type sessionResponse struct {
	Status        string     `json:"status"`
	SessionID     string     `json:"session_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DevicePresent *bool      `json:"device_present,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type statusResponse struct {
	Active        bool       `json:"active"`
	SessionID     string     `json:"session_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DevicePresent bool       `json:"device_present"`
}

func startedAt(st session.Status) *time.Time {
	if st.StartedAt.IsZero() {
		return nil
	}
	t := st.StartedAt
	return &t
}

// Start handles POST /start.
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Start(r.Context())
	switch {
	case err == nil:
		present := st.DevicePresent
		writeJSON(w, http.StatusOK, sessionResponse{
			Status:        StatusStarted,
			SessionID:     st.ID,
			StartedAt:     startedAt(st),
			DevicePresent: &present,
		})
	case errors.Is(err, session.ErrAlreadyRunning):
		writeJSON(w, http.StatusBadRequest, sessionResponse{Status: StatusAlreadyRunning, SessionID: st.ID})
	case errors.Is(err, session.ErrStartFailed):
		h.logger.Error("start failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sessionResponse{Status: StatusErrorWritingSerial, Error: err.Error()})
	default:
		h.logger.Error("unexpected start error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
	}
}

// Stop handles POST /stop.
func (h *SessionHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	_, err := h.ctrl.Stop(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sessionResponse{Status: StatusStopped})
	case errors.Is(err, session.ErrNotRunning):
		writeJSON(w, http.StatusBadRequest, sessionResponse{Status: StatusNotRunning})
	default:
		h.logger.Error("unexpected stop error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop session")
	}
}

// Status handles GET /status.
func (h *SessionHandlers) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Active:        st.Active(),
		SessionID:     st.ID,
		StartedAt:     startedAt(st),
		DevicePresent: st.DevicePresent,
	})
}
