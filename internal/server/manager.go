package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// DrainFunc 在监听关闭后执行，用于收尾 http.Server 不再跟踪的长连接
type DrainFunc func(ctx context.Context) error

type drainHook struct {
	name string
	fn   DrainFunc
}

// Manager 管理单个监听端口的生命周期
type Manager struct {
	name   string
	server *http.Server
	config Config
	logger *zap.Logger
	errCh  chan error

	// 连接计数，由 ConnState 维护
	open     atomic.Int64
	upgraded atomic.Int64

	mu       sync.RWMutex
	listener net.Listener
	drains   []drainHook
	closed   bool
}

// Config 服务器配置
type Config struct {
	Addr              string        `yaml:"addr" json:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	// WriteTimeout 只作用于普通请求，实时端点升级前会清除连接上的截止时间
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// ShutdownTimeout 覆盖监听关闭与全部 drain 的总时长
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// TLSConfig 非空时以 HTTPS 监听，证书需已加载
	TLSConfig *tls.Config `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// NewManager 创建服务器管理器；name 用于日志区分多个监听端口
func NewManager(name string, handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		name:   name,
		config: config,
		errCh:  make(chan error, 1),
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
	}
	m.server = &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		TLSConfig:         config.TLSConfig,
		ErrorLog:          zap.NewStdLog(m.logger),
		ConnState:         m.trackConn,
	}
	return m
}

func (m *Manager) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		m.open.Add(1)
	case http.StateHijacked:
		m.open.Add(-1)
		m.upgraded.Add(1)
	case http.StateClosed:
		m.open.Add(-1)
	}
}

// OpenConns 当前由 http.Server 跟踪的连接数（不含已升级的连接）
func (m *Manager) OpenConns() int64 { return m.open.Load() }

// Upgraded 累计被劫持（websocket 升级）的连接数
func (m *Manager) Upgraded() int64 { return m.upgraded.Load() }

// OnDrain 注册关闭阶段的收尾逻辑，按注册顺序在 http.Server.Shutdown 之后执行
func (m *Manager) OnDrain(name string, fn DrainFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains = append(m.drains, drainHook{name: name, fn: fn})
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 监听并在后台服务（非阻塞）
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.listener != nil {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	if m.config.TLSConfig != nil {
		listener = tls.NewListener(listener, m.config.TLSConfig)
	}
	m.listener = listener

	m.logger.Info("starting server",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", m.config.TLSConfig != nil),
	)
	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 停止接受新连接，等待普通请求结束，再依次执行 drain。
// 整个过程受 ShutdownTimeout 约束，重复调用为空操作。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	drains := append([]drainHook(nil), m.drains...)
	m.mu.Unlock()

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("shutting down server",
		zap.Int64("open_conns", m.OpenConns()),
		zap.Int64("upgraded_total", m.Upgraded()),
	)

	var errs []error
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		errs = append(errs, err)
	}
	for _, d := range drains {
		if err := d.fn(ctx); err != nil {
			m.logger.Warn("drain failed", zap.String("drain", d.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("drain %s: %w", d.name, err))
		}
	}

	m.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Run 启动服务器并阻塞到 ctx 结束或服务异常退出，返回前完成优雅关闭。
// ctx 正常结束时返回 nil。
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.errCh:
	}

	// ctx 已结束，关闭过程使用独立的 context
	if err := m.Shutdown(context.WithoutCancel(ctx)); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Errors 返回后台 Serve 的异常
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 是否尚未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
