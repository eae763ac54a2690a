package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/voicebridge/internal/ctxkeys"
	"github.com/BaSui01/voicebridge/session"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 🎙️ 实时语音 websocket Handler
// =============================================================================

// RealtimeConfig 实时端点参数
type RealtimeConfig struct {
	// Session 每个会话的基础配置，voice 与 instructions 可被查询参数覆盖
	Session session.Config
	// ReadLimit 单条客户端消息上限
	ReadLimit int64
	// WriteTimeout 写客户端消息超时
	WriteTimeout time.Duration
	// OriginPatterns 允许的跨域 Origin，空表示只接受同源或无 Origin 的客户端
	OriginPatterns []string
}

// RealtimeHandler 将 websocket 连接升级为代理会话
type RealtimeHandler struct {
	manager   *session.Manager
	connector session.Connector
	config    RealtimeConfig
	logger    *zap.Logger
}

// NewRealtimeHandler 创建实时端点处理器
func NewRealtimeHandler(manager *session.Manager, connector session.Connector, config RealtimeConfig, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 1 << 20
	}
	return &RealtimeHandler{
		manager:   manager,
		connector: connector,
		config:    config,
		logger:    logger.With(zap.String("handler", "realtime")),
	}
}

// ServeHTTP 处理 GET /v1/realtime。
// 会话数已满时在升级前返回 503，升级后会话运行到任一端结束。
func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.manager.Available() {
		w.Header().Set("Retry-After", "1")
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, CodeSessionLimit, "too many active sessions")
		return
	}

	cfg := h.config.Session
	q := r.URL.Query()
	if v := q.Get("voice"); v != "" {
		cfg.Session.Voice = v
	}
	if v := q.Get("instructions"); v != "" {
		cfg.Session.Instructions = v
	}

	// 劫持后的连接沿用 http.Server 的读写超时，长连接会话需要清除
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.config.ReadLimit)

	s := session.New(cfg, h.connector, h.logger)
	unregister, err := h.manager.Register(s)
	if err != nil {
		// Available 与 Register 之间被其他连接占满
		conn.Close(websocket.StatusTryAgainLater, "too many active sessions")
		return
	}
	defer unregister()

	ctx := ctxkeys.WithSessionID(r.Context(), s.ID())
	logger := h.logger.With(ctxkeys.Fields(ctx)...)
	logger.Info("realtime session started", zap.String("remote_addr", r.RemoteAddr))

	start := time.Now()
	err = s.Run(ctx, session.NewWebSocketTransport(conn, h.config.WriteTimeout))

	fields := []zap.Field{
		zap.String("provider", s.Provider()),
		zap.Stringer("state", s.State()),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case err == nil:
		logger.Info("realtime session ended", fields...)
	case errors.Is(err, session.ErrAlreadyRunning):
		logger.Error("realtime session started twice", zap.Error(err))
	default:
		logger.Warn("realtime session failed", append(fields, zap.Error(err))...)
	}
}

// HandleListSessions 处理 GET /v1/sessions
func (h *RealtimeHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteSuccess(w, r, map[string]any{
		"count":    h.manager.Count(),
		"sessions": h.manager.List(),
	})
}
