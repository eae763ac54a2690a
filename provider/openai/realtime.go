package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/BaSui01/voicebridge/internal/tlsutil"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// RealtimeConfig OpenAI Realtime 连接配置
type RealtimeConfig struct {
	ID        string        `yaml:"id" json:"id"`
	APIKey    string        `yaml:"api_key" json:"-"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Model     string        `yaml:"model" json:"model"`
	ReadLimit int64         `yaml:"read_limit" json:"read_limit"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"` // 写操作超时
	// EventBuffer 上游事件通道容量
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`

	HTTPClient *http.Client `yaml:"-" json:"-"`
}

// DefaultRealtimeConfig 返回默认配置
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		ID:          "openai",
		BaseURL:     "wss://api.openai.com/v1/realtime",
		Model:       "gpt-4o-realtime-preview",
		ReadLimit:   16 << 20,
		Timeout:     10 * time.Second,
		EventBuffer: 64,
	}
}

// RealtimeAdapter 实现 provider.RealtimeAdapter
type RealtimeAdapter struct {
	cfg    RealtimeConfig
	logger *zap.Logger
}

// NewRealtimeAdapter 创建 OpenAI Realtime 适配器，零值字段取默认值
func NewRealtimeAdapter(cfg RealtimeConfig, logger *zap.Logger) *RealtimeAdapter {
	def := DefaultRealtimeConfig()
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = tlsutil.WebSocketHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeAdapter{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "openai_realtime"), zap.String("provider", cfg.ID)),
	}
}

func (a *RealtimeAdapter) ID() string { return a.cfg.ID }

func (a *RealtimeAdapter) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityRealtime}
}

// Connect 拨号上游 websocket。ctx 只约束拨号过程，不约束连接生命周期。
func (a *RealtimeAdapter) Connect(ctx context.Context, sc provider.SessionConfig) (provider.RealtimeConn, error) {
	if a.cfg.APIKey == "" {
		return nil, types.NewError(types.KindAuthentication, "api key is not configured").WithProvider(a.cfg.ID)
	}

	model := sc.Model
	if model == "" {
		model = a.cfg.Model
	}
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, types.NewError(types.KindNotFound, "invalid realtime endpoint").WithCause(err).WithProvider(a.cfg.ID)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: a.cfg.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, a.dialError(ctx, resp, err)
	}
	ws.SetReadLimit(a.cfg.ReadLimit)

	c := newRealtimeConn(a.cfg, ws, a.logger)
	a.logger.Info("realtime connection established", zap.String("model", model))
	return c, nil
}

func (a *RealtimeAdapter) dialError(ctx context.Context, resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode >= 400 {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		return types.NewHTTPError(a.cfg.ID, resp.StatusCode, body).WithCause(err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.Classify(ctxErr, a.cfg.ID)
	}
	e := types.Classify(err, a.cfg.ID)
	if e.Kind == types.KindUnknown {
		e.Kind, e.Retryable = types.KindNetwork, true
	}
	return e
}

// ============================================================
// 连接
// ============================================================

type realtimeConn struct {
	provider string
	ws       *websocket.Conn
	logger   *zap.Logger
	timeout  time.Duration

	events chan provider.Event
	done   chan struct{}
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool

	errMu sync.Mutex
	err   error
}

func newRealtimeConn(cfg RealtimeConfig, ws *websocket.Conn, logger *zap.Logger) *realtimeConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &realtimeConn{
		provider: cfg.ID,
		ws:       ws,
		logger:   logger,
		timeout:  cfg.Timeout,
		events:   make(chan provider.Event, cfg.EventBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go c.readLoop(ctx)
	return c
}

func (c *realtimeConn) Provider() string              { return c.provider }
func (c *realtimeConn) Events() <-chan provider.Event { return c.events }

func (c *realtimeConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *realtimeConn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *realtimeConn) readLoop(ctx context.Context) {
	defer close(c.events)

	for {
		var msg serverEvent
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			c.handleReadError(err)
			return
		}

		ev, ok := msg.normalize()
		if !ok {
			c.logger.Debug("ignoring realtime event", zap.String("type", msg.Type))
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *realtimeConn) handleReadError(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		c.logger.Info("realtime connection closed by provider", zap.Int("status", int(status)))
		c.setErr(types.NewError(types.KindNetwork, "provider closed the connection").WithProvider(c.provider).WithCause(err))
		return
	}

	classified := types.Classify(err, c.provider)
	if classified.Kind == types.KindUnknown {
		classified = types.NewError(types.KindNetwork, "realtime connection dropped").WithProvider(c.provider).WithCause(err)
	}
	c.logger.Warn("realtime read failed", zap.Error(err))
	c.setErr(classified)
}

func (c *realtimeConn) send(ctx context.Context, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return types.NewError(types.KindNetwork, "connection closed").WithProvider(c.provider)
	}

	wctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := wsjson.Write(wctx, c.ws, v); err != nil {
		return types.Classify(fmt.Errorf("websocket write: %w", err), c.provider)
	}
	return nil
}

func (c *realtimeConn) Configure(ctx context.Context, sc provider.SessionConfig) error {
	return c.send(ctx, newSessionUpdate(sc))
}

func (c *realtimeConn) AppendAudio(ctx context.Context, encoded string) error {
	return c.send(ctx, clientEvent{Type: "input_audio_buffer.append", Audio: encoded})
}

func (c *realtimeConn) Commit(ctx context.Context) error {
	return c.send(ctx, clientEvent{Type: "input_audio_buffer.commit"})
}

func (c *realtimeConn) RequestResponse(ctx context.Context) error {
	return c.send(ctx, clientEvent{Type: "response.create"})
}

// Close 关闭连接，可重复调用
func (c *realtimeConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()

		err = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.cancel()
		c.logger.Debug("realtime connection closed")
	})

	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		// 对端已断开时 Close 返回的错误不影响调用方
		c.logger.Debug("realtime close", zap.Error(err))
	}
	return nil
}
