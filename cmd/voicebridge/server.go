package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/voicebridge/api/handlers"
	"github.com/BaSui01/voicebridge/config"
	"github.com/BaSui01/voicebridge/internal/cache"
	"github.com/BaSui01/voicebridge/internal/database"
	"github.com/BaSui01/voicebridge/internal/metrics"
	"github.com/BaSui01/voicebridge/internal/server"
	"github.com/BaSui01/voicebridge/internal/telemetry"
	"github.com/BaSui01/voicebridge/internal/tlsutil"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/provider/factory"
	"github.com/BaSui01/voicebridge/provider/router"
	"github.com/BaSui01/voicebridge/session"
	"github.com/BaSui01/voicebridge/usage"
	"github.com/BaSui01/voicebridge/usage/redisstore"
	"github.com/BaSui01/voicebridge/usage/sqlstore"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装代理的全部组件，管理 HTTP 与 Metrics 双端口及优雅关闭
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	cache     *cache.Manager
	db        *database.PoolManager
	sinks     []*usage.Async
	stats     *usage.Stats
	history   handlers.ErrorHistory

	registry *provider.Registry
	breakers *circuitbreaker.Registry
	router   *router.Router
	sessions *session.Manager

	healthHandler    *handlers.HealthHandler
	realtimeHandler  *handlers.RealtimeHandler
	speechHandler    *handlers.SpeechHandler
	providersHandler *handlers.ProvidersHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 按配置初始化全部组件。Redis 与数据库不可用时降级运行。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	tp, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = tp

	s.collector = metrics.NewCollector("voicebridge", logger)
	s.stats = usage.NewStats()
	s.healthHandler = handlers.NewHealthHandler(logger)

	// 1. provider 与熔断器
	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = s.collector.BreakerStateChanged
	s.breakers = circuitbreaker.NewRegistry(breakerCfg, logger)

	s.registry, err = factory.NewRegistry(cfg.Providers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	// 2. 用量持久化
	s.initStorage(ctx)

	recorders := []usage.Recorder{s.stats, s.collector}
	for _, sink := range s.sinks {
		recorders = append(recorders, sink)
	}
	s.router = router.New(cfg.Router, s.breakers, usage.Multi(recorders...), logger)

	// 3. 会话
	s.sessions = session.NewManager(cfg.Session.MaxSessions, logger)
	connector := session.NewRoutedConnector(s.router, s.registry, session.Route{
		Primary:   cfg.Session.Provider,
		Fallbacks: cfg.Session.Fallbacks,
		Timeout:   cfg.Session.ConnectTimeout,
		Retries:   cfg.Session.ConnectRetries,
	})

	// 4. Handlers
	s.realtimeHandler = handlers.NewRealtimeHandler(s.sessions, connector, handlers.RealtimeConfig{
		Session: session.Config{
			Session:              sessionDefaults(cfg.Session),
			MaxBufferBytes:       cfg.Session.MaxBufferBytes,
			AudioFramesPerSecond: cfg.Session.AudioFramesPerSecond,
			AudioFrameBurst:      cfg.Session.AudioFrameBurst,
			OnStateChange:        s.collector.SessionStateChanged,
		},
		ReadLimit:      cfg.Session.ReadLimit,
		WriteTimeout:   cfg.Session.WriteTimeout,
		OriginPatterns: cfg.Server.CORSAllowedOrigins,
	}, logger)

	s.speechHandler = handlers.NewSpeechHandler(s.router, s.registry, handlers.SpeechConfig{
		TTS:            handlers.Route{Primary: cfg.Speech.TTSProvider, Fallbacks: cfg.Speech.TTSFallbacks},
		STT:            handlers.Route{Primary: cfg.Speech.STTProvider, Fallbacks: cfg.Speech.STTFallbacks},
		MaxUploadBytes: cfg.Server.MaxBodyBytes,
	}, logger)

	s.providersHandler = handlers.NewProvidersHandler(s.registry, s.breakers, s.stats, s.history, logger)

	s.healthHandler.ReportSessions(s.sessions.Count)
	s.healthHandler.RegisterCheck(handlers.NewCheck("realtime_route",
		routeCheck(s.breakers, cfg.Session.Provider, cfg.Session.Fallbacks)))

	if err := s.initHTTPServer(); err != nil {
		s.Close()
		return nil, err
	}
	s.initMetricsServer()

	logger.Info("Server initialized",
		zap.Strings("providers", s.registry.IDs(provider.CapabilityRealtime)),
		zap.String("session_provider", cfg.Session.Provider),
		zap.Int("max_sessions", cfg.Session.MaxSessions),
		zap.Int("usage_sinks", len(s.sinks)),
	)
	return s, nil
}

// sessionDefaults 在默认会话配置上应用模型、音色与指令覆盖
func sessionDefaults(c config.SessionConfig) provider.SessionConfig {
	sc := provider.DefaultSessionConfig()
	if c.Model != "" {
		sc.Model = c.Model
	}
	if c.Voice != "" {
		sc.Voice = c.Voice
	}
	if c.Instructions != "" {
		sc.Instructions = c.Instructions
	}
	return sc
}

// routeCheck 会话路由上的 provider 熔断器全部打开时服务不就绪
func routeCheck(breakers *circuitbreaker.Registry, primary string, fallbacks []string) func(context.Context) error {
	ids := append([]string{primary}, fallbacks...)
	return func(context.Context) error {
		for _, id := range ids {
			b, ok := breakers.Lookup(id)
			if !ok || b.Available() {
				return nil
			}
		}
		return fmt.Errorf("circuit open for every realtime provider: %v", ids)
	}
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 连接 Redis 与数据库并包装为异步用量 sink。
// 两者同时启用时失败历史以数据库为准。
func (s *Server) initStorage(ctx context.Context) {
	asyncCfg := usage.AsyncConfig{Workers: 2, QueueSize: 1024, WriteTimeout: 5 * time.Second}

	if rc := s.cfg.Redis; rc.Enabled {
		m, err := cache.NewManager(cache.Config{
			Addr:                rc.Addr,
			Password:            rc.Password,
			DB:                  rc.DB,
			MaxRetries:          3,
			PoolSize:            rc.PoolSize,
			MinIdleConns:        rc.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
			OnHealthChange:      s.collector.StorageHealthChanged("redis"),
		}, s.logger)
		if err != nil {
			s.logger.Warn("Redis not available, usage counters stay in memory", zap.Error(err))
		} else {
			s.cache = m
			store := redisstore.New(m.Client(), rc.KeyPrefix)
			s.addSink("redis", store, asyncCfg)
			s.history = store
			s.healthHandler.RegisterCheck(handlers.NewOptionalCheck("redis", m.Ping))
		}
	}

	if dc := s.cfg.Database; dc.Enabled {
		pm, err := openDatabase(ctx, dc, s.collector.StorageHealthChanged("database"), s.logger)
		if err != nil {
			s.logger.Warn("Database not available, error history disabled", zap.Error(err))
			return
		}
		store := sqlstore.New(pm.DB())
		if err := store.Migrate(ctx); err != nil {
			s.logger.Error("Database auto-migrate failed", zap.Error(err))
			_ = pm.Close()
			return
		}
		s.db = pm
		s.addSink("sql", store, asyncCfg)
		s.history = store
		s.healthHandler.RegisterCheck(handlers.NewOptionalCheck("database", pm.Ping))
	}
}

func (s *Server) addSink(name string, sink usage.Sink, cfg usage.AsyncConfig) {
	a := usage.NewAsync(name, sink, cfg, s.logger)
	s.collector.ObserveDroppedUsage(name, a.Dropped)
	s.sinks = append(s.sinks, a)
}

// openDatabase 根据配置打开数据库连接并配置连接池
func openDatabase(ctx context.Context, dc config.DatabaseConfig, onHealth func(bool), logger *zap.Logger) (*database.PoolManager, error) {
	db, err := database.Open(dc.Driver, dc.DSN())
	if err != nil {
		return nil, err
	}
	pm, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:        dc.MaxIdleConns,
		MaxOpenConns:        dc.MaxOpenConns,
		ConnMaxLifetime:     dc.ConnMaxLifetime,
		HealthCheckInterval: 30 * time.Second,
		OnHealthChange:      onHealth,
	}, logger)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pm.Ping(pingCtx); err != nil {
		_ = pm.Close()
		return nil, err
	}

	logger.Info("Database connected", zap.String("driver", dc.Driver))
	return pm, nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// healthPaths 不需要认证，也不计入限流
var healthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.Handle("GET /v1/realtime", s.realtimeHandler)
	mux.HandleFunc("GET /v1/sessions", s.realtimeHandler.HandleListSessions)

	mux.HandleFunc("POST /v1/audio/speech", s.speechHandler.HandleSynthesize)
	mux.HandleFunc("POST /v1/audio/transcriptions", s.speechHandler.HandleTranscribe)

	mux.HandleFunc("GET /v1/providers", s.providersHandler.HandleList)
	mux.HandleFunc("GET /v1/providers/{id}", s.providersHandler.HandleGet)
	mux.HandleFunc("GET /v1/providers/{id}/errors", s.providersHandler.HandleErrors)
	mux.HandleFunc("POST /v1/providers/{id}/breaker/reset", s.providersHandler.HandleResetBreaker)

	return mux
}

func (s *Server) initHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, healthPaths, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, healthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		serverConfig.TLSConfig = tlsCfg
	}

	s.httpManager = server.NewManager("http", handler, serverConfig, s.logger)
	// 被劫持的 websocket 不受 http.Server.Shutdown 管理
	s.httpManager.OnDrain("sessions", s.drainSessions)
	return nil
}

// initMetricsServer 在独立端口暴露 /metrics，MetricsPort 为 0 时不启动
func (s *Server) initMetricsServer() {
	if s.cfg.Server.MetricsPort == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动全部监听并阻塞到 ctx 结束；任一服务异常退出时其余服务随之关闭
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
	)
	return g.Wait()
}

// drainSessions 关闭全部会话并等待处理器注销
func (s *Server) drainSessions(ctx context.Context) error {
	s.sessions.CloseAll()
	if !s.sessions.Wait(ctx) {
		return fmt.Errorf("%d sessions still active at shutdown deadline", s.sessions.Count())
	}
	return nil
}

// Close 释放会话与存储资源，可在 Run 返回后调用
func (s *Server) Close() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 未经 Run 时会话仍可能存活，drain 可重复执行
	if s.sessions != nil {
		if err := s.drainSessions(ctx); err != nil {
			s.logger.Warn("session drain incomplete", zap.Error(err))
		}
	}

	// 2. 排空用量队列
	for _, sink := range s.sinks {
		if err := sink.Close(ctx); err != nil {
			s.logger.Warn("usage sink close error", zap.Error(err))
		}
	}

	// 3. 遥测与存储
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown error", zap.Error(err))
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("redis close error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
