package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

func pass(context.Context) error { return nil }

func TestHealthHandler_Liveness(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, StatusHealthy, status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.NotEmpty(t, status.Uptime)
	assert.Nil(t, status.Sessions)
}

func TestHealthHandler_LivenessReportsSessions(t *testing.T) {
	handler := NewHealthHandler(nil)
	handler.ReportSessions(func() int { return 3 })

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	status := decodeHealth(t, w)
	require.NotNil(t, status.Sessions)
	assert.Equal(t, 3, *status.Sessions)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	refused := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantHealth string
		wantFailed string
	}{
		{name: "no checks", wantStatus: http.StatusOK, wantHealth: StatusHealthy},
		{
			name:       "all pass",
			checks:     []HealthCheck{NewOptionalCheck("redis", pass), NewCheck("providers", pass)},
			wantStatus: http.StatusOK,
			wantHealth: StatusHealthy,
		},
		{
			name:       "optional storage down",
			checks:     []HealthCheck{NewOptionalCheck("redis", pass), NewOptionalCheck("database", refused)},
			wantStatus: http.StatusOK,
			wantHealth: StatusDegraded,
			wantFailed: "database",
		},
		{
			name:       "critical check down",
			checks:     []HealthCheck{NewOptionalCheck("database", refused), NewCheck("providers", refused)},
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: StatusUnhealthy,
			wantFailed: "providers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(nil)
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			status := decodeHealth(t, w)
			assert.Equal(t, tt.wantHealth, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantFailed != "" {
				assert.Equal(t, "fail", status.Checks[tt.wantFailed].Status)
				assert.Equal(t, "connection refused", status.Checks[tt.wantFailed].Message)
			}
		})
	}
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHealthHandler(nil)
	handler.checkTimeout = 20 * time.Millisecond
	handler.RegisterCheck(NewCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	status := decodeHealth(t, w)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.2.3", "2026-01-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "1.2.3", resp.Data["version"])
	assert.Equal(t, "abc123", resp.Data["git_commit"])
}

func TestHealthHandler_ConcurrentRegisterAndReady(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			handler.RegisterCheck(NewCheck("c", pass))
		}()
		go func() {
			defer wg.Done()
			handler.HandleReady(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))
		}()
	}
	wg.Wait()
}
