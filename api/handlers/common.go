package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/BaSui01/voicebridge/internal/ctxkeys"
	"github.com/BaSui01/voicebridge/types"

	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Provider  string              `json:"provider,omitempty"`
	Retryable bool                `json:"retryable,omitempty"`
	Attempts  []types.ErrorRecord `json:"attempts,omitempty"`
}

// 处理器自身产生的错误码，provider 错误直接使用 ErrorKind
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeSessionLimit     = "SESSION_LIMIT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeAllFailed        = "ALL_PROVIDERS_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败无法再改变响应
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError 根据错误类型写入错误响应。
// AllProvidersFailedError 携带全部尝试记录，*types.Error 按类别映射状态码。
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	status, info := describeError(err)

	if logger != nil {
		fields := append(ctxkeys.Fields(r.Context()),
			zap.String("code", info.Code),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteErrorMessage 写入处理器自身的错误，例如参数校验失败
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

func describeError(err error) (int, *ErrorInfo) {
	var all *types.AllProvidersFailedError
	if errors.As(err, &all) {
		info := &ErrorInfo{
			Code:     CodeAllFailed,
			Message:  all.Error(),
			Attempts: all.Attempts,
		}
		if all.LastError == nil {
			// 所有 provider 的熔断器都处于打开状态
			return http.StatusServiceUnavailable, info
		}
		info.Provider = all.LastError.Provider
		info.Retryable = all.LastError.Retryable
		return kindToHTTPStatus(all.LastError.Kind), info
	}

	if e, ok := types.AsError(err); ok {
		return kindToHTTPStatus(e.Kind), &ErrorInfo{
			Code:      string(e.Kind),
			Message:   e.Message,
			Provider:  e.Provider,
			Retryable: e.Retryable,
		}
	}

	return http.StatusInternalServerError, &ErrorInfo{Code: CodeInternal, Message: "internal server error"}
}

// =============================================================================
// 🔄 错误类别到 HTTP 状态码映射
// =============================================================================

// kindToHTTPStatus 上游凭证与协议问题对客户端而言都是网关错误
func kindToHTTPStatus(kind types.ErrorKind) int {
	switch kind {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindRateLimit:
		return http.StatusTooManyRequests
	case types.KindTimeout:
		return http.StatusGatewayTimeout
	case types.KindAuthentication, types.KindAuthorization,
		types.KindServerError, types.KindNetwork, types.KindParseError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体，失败时已写出 400 响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "request body is empty")
		return false
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// RequireMethod 请求方法不匹配时写出 405
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteErrorMessage(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	return false
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := ctxkeys.RequestID(r.Context())
	return id
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数。
// Unwrap 让 http.ResponseController 与 websocket.Accept 能取到底层连接。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 返回底层 ResponseWriter
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack 供 websocket 升级使用；劫持后的连接不再计入状态码
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err == nil {
		rw.StatusCode = http.StatusSwitchingProtocols
		rw.Written = true
	}
	return conn, brw, err
}

// Flush implements http.Flusher.
func (rw *ResponseWriter) Flush() {
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}
