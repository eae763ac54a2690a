package usage

import (
	"context"
	"time"

	"github.com/BaSui01/voicebridge/internal/pool"

	"go.uber.org/zap"
)

// Sink 同步写入的持久化后端，例如 Redis 或 SQL
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// AsyncConfig 异步写入参数
type AsyncConfig struct {
	Workers   int
	QueueSize int
	// WriteTimeout 单次 Sink.Write 超时
	WriteTimeout time.Duration
}

// Async 把 Sink 包装成不阻塞调用方的 Recorder。队列满时事件被丢弃并计数。
type Async struct {
	name    string
	sink    Sink
	timeout time.Duration
	pool    *pool.GoroutinePool
	logger  *zap.Logger
}

// NewAsync 创建异步 Recorder，name 用于日志
func NewAsync(name string, sink Sink, cfg AsyncConfig, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	logger = logger.With(zap.String("component", "usage_sink"), zap.String("sink", name))
	return &Async{
		name:    name,
		sink:    sink,
		timeout: cfg.WriteTimeout,
		logger:  logger,
		pool: pool.NewGoroutinePool(pool.Config{
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			OnError: func(err error) {
				logger.Warn("usage write failed", zap.Error(err))
			},
		}),
	}
}

// Record 实现 Recorder。调用方 ctx 的取消不影响已入队的写入。
func (a *Async) Record(_ context.Context, ev Event) {
	err := a.pool.Submit(func(ctx context.Context) error {
		wctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.sink.Write(wctx, ev)
	})
	if err != nil {
		a.logger.Debug("usage event dropped",
			zap.String("provider", ev.Provider),
			zap.Error(err),
		)
	}
}

// Dropped returns how many events were rejected because the queue was full.
func (a *Async) Dropped() int64 { return a.pool.Stats().Rejected }

// Close 停止接收并等待队列写完
func (a *Async) Close(ctx context.Context) error {
	return a.pool.Close(ctx)
}
