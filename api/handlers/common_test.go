package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/voicebridge/internal/ctxkeys"
	"github.com/BaSui01/voicebridge/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"message": "hello"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess_IncludesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_Mapping(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		attempts   int
	}{
		{
			name:       "not found",
			err:        types.NewError(types.KindNotFound, "unknown provider").WithProvider("x"),
			wantStatus: http.StatusNotFound,
			wantCode:   string(types.KindNotFound),
		},
		{
			name:       "upstream auth is a gateway error",
			err:        types.NewError(types.KindAuthentication, "bad key"),
			wantStatus: http.StatusBadGateway,
			wantCode:   string(types.KindAuthentication),
		},
		{
			name:       "rate limit",
			err:        types.NewError(types.KindRateLimit, "slow down"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   string(types.KindRateLimit),
		},
		{
			name:       "timeout",
			err:        types.NewError(types.KindTimeout, "deadline"),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   string(types.KindTimeout),
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
		{
			name:       "no provider available",
			err:        types.NewAllProvidersFailedError(nil, nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeAllFailed,
		},
		{
			name: "all providers failed uses last attempt",
			err: types.NewAllProvidersFailedError([]types.ErrorRecord{
				{Kind: types.KindServerError, Provider: "a", Attempt: 1, Retryable: true, Timestamp: now, Message: "500"},
				{Kind: types.KindRateLimit, Provider: "b", Attempt: 1, Retryable: true, Timestamp: now, Message: "429"},
			}, types.NewError(types.KindRateLimit, "429")),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeAllFailed,
			attempts:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Len(t, resp.Error.Attempts, tt.attempts)
		})
	}
}

func TestWriteError_AllFailedCarriesLastProvider(t *testing.T) {
	err := types.NewAllProvidersFailedError([]types.ErrorRecord{
		{Kind: types.KindNetwork, Provider: "openai", Attempt: 2, Retryable: true, Message: "reset"},
	}, nil)
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "openai", resp.Error.Provider)
	assert.True(t, resp.Error.Retryable)
	assert.Contains(t, resp.Error.Message, "all providers failed")
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "valid", body: `{"name":"x"}`, ok: true},
		{name: "empty", body: "", ok: false},
		{name: "malformed", body: `{"name":`, ok: false},
		{name: "unknown field", body: `{"name":"x","extra":1}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			} else {
				r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			}
			w := httptest.NewRecorder()
			var dst payload

			assert.Equal(t, tt.ok, DecodeJSONBody(w, r, &dst))
			if tt.ok {
				assert.Equal(t, "x", dst.Name)
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, CodeInvalidRequest, decodeResponse(t, w).Error.Code)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, RequireMethod(w, httptest.NewRequest(http.MethodGet, "/", nil), http.MethodGet))

	w = httptest.NewRecorder()
	assert.False(t, RequireMethod(w, httptest.NewRequest(http.MethodDelete, "/", nil), http.MethodPost))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestKindToHTTPStatus_Unknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, kindToHTTPStatus(types.KindUnknown))
}

// =============================================================================
// 🧪 ResponseWriter 测试
// =============================================================================

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // 只记录第一次
	n, err := rw.Write([]byte("hello"))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte("x"))
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	conn net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, nil, nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rw := NewResponseWriter(&hijackRecorder{ResponseRecorder: httptest.NewRecorder(), conn: server})
	var _ http.Hijacker = rw

	conn, _, err := rw.Hijack()
	require.NoError(t, err)
	assert.Same(t, server, conn)
	assert.Equal(t, http.StatusSwitchingProtocols, rw.StatusCode)
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.Written)
}

func TestRequestID_NilRequest(t *testing.T) {
	assert.Empty(t, requestID(nil))
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	assert.Empty(t, requestID(r))
}
