package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/device"
	"biotune/backend/services/bridge-service/internal/session"
)

type fakeController struct {
	startStatus session.Status
	startErr    error
	stopErr     error
	status      session.Status
	startCtx    context.Context
}

func (f *fakeController) Start(ctx context.Context) (session.Status, error) {
	f.startCtx = ctx
	return f.startStatus, f.startErr
}

func (f *fakeController) Stop(ctx context.Context) (session.Status, error) {
	return session.Status{}, f.stopErr
}

func (f *fakeController) Status() session.Status { return f.status }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestStartHandler(t *testing.T) {
	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		ctrl       *fakeController
		wantCode   int
		wantStatus string
	}{
		{
			name:       "started",
			ctrl:       &fakeController{startStatus: session.Status{ID: "s-1", State: session.StateActive, StartedAt: startedAt, DevicePresent: true}},
			wantCode:   http.StatusOK,
			wantStatus: StatusStarted,
		},
		{
			name:       "already running",
			ctrl:       &fakeController{startErr: session.ErrAlreadyRunning},
			wantCode:   http.StatusBadRequest,
			wantStatus: StatusAlreadyRunning,
		},
		{
			name:       "serial write failed",
			ctrl:       &fakeController{startErr: &session.StartError{Err: device.ErrWriteFailed}},
			wantCode:   http.StatusInternalServerError,
			wantStatus: StatusErrorWritingSerial,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSessionHandlers(tc.ctrl, zap.NewNop())
			rec := httptest.NewRecorder()
			h.Start(rec, httptest.NewRequest(http.MethodPost, "/start", nil))

			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			body := decode(t, rec)
			if body["status"] != tc.wantStatus {
				t.Fatalf("status = %v, want %s", body["status"], tc.wantStatus)
			}
			if tc.wantCode == http.StatusOK {
				if body["session_id"] != "s-1" || body["started_at"] != "2026-03-01T09:00:00Z" {
					t.Fatalf("body = %v", body)
				}
			}
			if tc.wantCode == http.StatusInternalServerError && body["error"] == "" {
				t.Fatal("missing error detail")
			}
			if tc.ctrl.startCtx == nil {
				t.Fatal("controller did not receive request context")
			}
		})
	}
}

func TestStartHandlerUnexpectedError(t *testing.T) {
	h := NewSessionHandlers(&fakeController{startErr: errors.New("boom")}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/start", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if body := decode(t, rec); body["error"] != "failed to start session" {
		t.Fatalf("body = %v", body)
	}
}

func TestStopHandler(t *testing.T) {
	h := NewSessionHandlers(&fakeController{}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != StatusStopped {
		t.Fatalf("stop: %d %s", rec.Code, rec.Body.String())
	}

	h = NewSessionHandlers(&fakeController{stopErr: session.ErrNotRunning}, zap.NewNop())
	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusBadRequest || decode(t, rec)["status"] != StatusNotRunning {
		t.Fatalf("stop idle: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	ctrl := &fakeController{status: session.Status{ID: "s-9", State: session.StateActive, StartedAt: time.Now(), DevicePresent: false}}
	h := NewSessionHandlers(ctrl, zap.NewNop())
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decode(t, rec)
	if body["active"] != true || body["session_id"] != "s-9" || body["device_present"] != false {
		t.Fatalf("body = %v", body)
	}

	ctrl.status = session.Status{DevicePresent: true}
	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	body = decode(t, rec)
	if body["active"] != false {
		t.Fatalf("idle body = %v", body)
	}
	if _, ok := body["started_at"]; ok {
		t.Fatalf("idle status carries started_at: %v", body)
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}
