package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/provider/retry"
	"github.com/BaSui01/voicebridge/types"
	"github.com/BaSui01/voicebridge/usage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Operation 针对某个 provider 执行一次调用。
// provider 参数让调用方为故障转移目标派生各自的请求参数（模型、音色等）。
type Operation[T any] func(ctx context.Context, provider string) (T, error)

// Config 路由默认参数
type Config struct {
	Retries int           `yaml:"retries" env:"RETRIES" json:"retries"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" json:"timeout"`
	Backoff retry.Policy  `yaml:"backoff" env:"BACKOFF" json:"backoff"`
}

// DefaultConfig 返回默认配置：重试 3 次，单次超时 30s
func DefaultConfig() Config {
	return Config{
		Retries: 3,
		Timeout: 30 * time.Second,
		Backoff: retry.DefaultPolicy(),
	}
}

// Router 带重试、熔断与有序降级的一次性调用执行器
type Router struct {
	config   Config
	breakers *circuitbreaker.Registry
	recorder usage.Recorder
	logger   *zap.Logger
	obs      *instruments
	now      func() time.Time
}

// New 创建路由器。breakers 由调用方注入，多个 Router 可共享同一注册表。
func New(config Config, breakers *circuitbreaker.Registry, recorder usage.Recorder, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)
	}
	if recorder == nil {
		recorder = usage.Nop
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	config.Backoff = config.Backoff.Normalize()

	return &Router{
		config:   config,
		breakers: breakers,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "router")),
		obs:      newInstruments(),
		now:      time.Now,
	}
}

// Breakers exposes the shared breaker registry.
func (r *Router) Breakers() *circuitbreaker.Registry { return r.breakers }

// callOptions 单次调用参数
type callOptions struct {
	operation string
	fallbacks []string
	retries   int
	timeout   time.Duration
	discard   func(any)
	eligible  func(provider string) error
}

// Option 配置单次调用
type Option func(*callOptions)

// WithFallbacks 设置有序降级列表
func WithFallbacks(providers ...string) Option {
	return func(o *callOptions) { o.fallbacks = append(o.fallbacks, providers...) }
}

// WithRetries 设置主 provider 的重试次数（总尝试次数为 n+1）
func WithRetries(n int) Option {
	return func(o *callOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithTimeout 设置单次尝试超时
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithOperation names the call for logs, spans and usage events.
func WithOperation(name string) Option {
	return func(o *callOptions) { o.operation = name }
}

// WithDiscard 注册被放弃尝试的迟到结果的清理函数。
// 尝试超时或调用方取消后 op 仍可能成功返回，例如已建立的连接需要关闭。
func WithDiscard(fn func(any)) Option {
	return func(o *callOptions) { o.discard = fn }
}

// WithEligibility 在触碰熔断器之前检查 provider 能否承担本次操作。
// 返回错误的 provider 被跳过：不创建熔断器、不计入失败、不产生用量事件，
// 错误只进入最终的失败记录。
func WithEligibility(fn func(provider string) error) Option {
	return func(o *callOptions) { o.eligible = fn }
}

// Execute 是 Do 的非泛型形式
func (r *Router) Execute(ctx context.Context, primary string, op Operation[any], opts ...Option) (any, error) {
	return Do(ctx, r, primary, op, opts...)
}

// Do 执行一次逻辑调用：
//  1. 主 provider 熔断不可用时直接跳到降级列表；
//  2. 否则最多尝试 retries+1 次，每次受 timeout 约束，可重试错误之间按退避等待；
//  3. 不可重试错误立即转入降级列表；
//  4. 降级 provider 依次各尝试一次，熔断不可用者跳过；
//  5. 全部失败返回 *types.AllProvidersFailedError。
//
// 任一成功立即返回。ctx 取消时立即停止，未开始的尝试不计入熔断。
func Do[T any](ctx context.Context, r *Router, primary string, op Operation[T], opts ...Option) (T, error) {
	var zero T

	o := callOptions{
		operation: "call",
		retries:   r.config.Retries,
		timeout:   r.config.Timeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := r.obs.tracer.Start(ctx, "router."+o.operation, trace.WithAttributes(
		attribute.String("router.primary", primary),
		attribute.StringSlice("router.fallbacks", o.fallbacks),
		attribute.Int("router.retries", o.retries),
	))
	defer span.End()

	start := r.now()
	c := &call[T]{router: r, opts: o, op: op, span: span}
	result, err := c.run(ctx, primary)

	r.obs.duration(ctx, o.operation, r.now().Sub(start), err == nil)
	span.SetAttributes(attribute.Int("router.attempts", c.attemptCount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	span.SetAttributes(attribute.String("router.provider", c.served))
	return result, nil
}

// call 保存一次逻辑调用的状态
type call[T any] struct {
	router *Router
	opts   callOptions
	op     Operation[T]
	span   trace.Span

	records      []types.ErrorRecord
	lastErr      error
	attemptCount int
	served       string
}

func (c *call[T]) run(ctx context.Context, primary string) (T, error) {
	var zero T
	r := c.router

	if primary == "" && len(c.opts.fallbacks) == 0 {
		return zero, types.NewError(types.KindNotFound, "no provider specified")
	}

	if primary != "" && c.eligible(ctx, primary) {
		pb := r.breakers.Get(primary)
		if !pb.Available() {
			r.logger.Info("primary provider unavailable, skipping to fallbacks",
				zap.String("provider", primary),
				zap.String("operation", c.opts.operation),
			)
			r.obs.skip(ctx, primary)
		} else {
			for attempt := 0; attempt <= c.opts.retries; attempt++ {
				if err := ctx.Err(); err != nil {
					return zero, c.cancelled(err)
				}
				if err := pb.Allow(); err != nil {
					break
				}

				res, retryable, err := c.attempt(ctx, pb, attempt+1)
				if err == nil {
					return res, nil
				}
				if ctx.Err() != nil {
					return zero, c.cancelled(ctx.Err())
				}
				if !retryable {
					r.logger.Info("non-retryable error, moving to fallbacks",
						zap.String("provider", primary),
						zap.Error(err),
					)
					break
				}
				if attempt == c.opts.retries || !pb.Available() {
					break
				}

				delay := r.config.Backoff.Delay(attempt)
				r.logger.Debug("retrying provider",
					zap.String("provider", primary),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
				)
				if err := retry.Sleep(ctx, delay); err != nil {
					return zero, c.cancelled(err)
				}
			}
		}
	}

	seen := map[string]bool{primary: true}
	prev := primary
	for _, fb := range c.opts.fallbacks {
		if seen[fb] || fb == "" {
			continue
		}
		seen[fb] = true

		if err := ctx.Err(); err != nil {
			return zero, c.cancelled(err)
		}
		if !c.eligible(ctx, fb) {
			continue
		}
		b := r.breakers.Get(fb)
		if err := b.Allow(); err != nil {
			r.logger.Info("fallback provider unavailable, skipping", zap.String("provider", fb))
			r.obs.skip(ctx, fb)
			continue
		}

		r.obs.fallback(ctx, prev, fb)
		prev = fb
		res, _, err := c.attempt(ctx, b, 1)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, c.cancelled(ctx.Err())
		}
	}

	failed := types.NewAllProvidersFailedError(c.records, c.lastErr)
	r.logger.Warn("all providers failed",
		zap.String("operation", c.opts.operation),
		zap.Int("attempts", len(c.records)),
		zap.Error(failed),
	)
	return zero, failed
}

// eligible 本地解析失败（未注册、不支持该能力）不是 provider 故障
func (c *call[T]) eligible(ctx context.Context, provider string) bool {
	if c.opts.eligible == nil {
		return true
	}
	err := c.opts.eligible(provider)
	if err == nil {
		return true
	}
	classified := types.Classify(err, provider)
	c.records = append(c.records, types.NewErrorRecord(classified, provider, 0, c.router.now()))
	c.lastErr = classified
	c.router.obs.skip(ctx, provider)
	c.router.logger.Debug("provider cannot serve operation, skipping",
		zap.String("provider", provider),
		zap.String("operation", c.opts.operation),
		zap.Error(err),
	)
	return false
}

type outcome[T any] struct {
	value T
	err   error
}

// attempt 执行一次受超时约束的尝试，并把结果记录到熔断器与用量统计。
// 返回的 err 非 nil 且 ctx 已取消时，本次尝试未被计入熔断。
func (c *call[T]) attempt(ctx context.Context, b *circuitbreaker.Breaker, n int) (T, bool, error) {
	var zero T
	r := c.router
	provider := b.Provider()
	c.attemptCount++

	callCtx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	start := r.now()
	done := make(chan outcome[T], 1)
	go func() {
		v, err := c.op(callCtx, provider)
		done <- outcome[T]{value: v, err: err}
	}()

	var err error
	select {
	case res := <-done:
		if res.err == nil {
			c.succeed(ctx, b, n, r.now().Sub(start))
			return res.value, true, nil
		}
		err = res.err
	case <-callCtx.Done():
		err = callCtx.Err()
		c.reapLate(done)
	}

	if ctx.Err() != nil {
		// 调用方放弃，结果未知：不计入失败，归还半开试探名额
		b.Release()
		r.obs.attempt(ctx, provider, "cancelled")
		return zero, false, err
	}

	var classified *types.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !isTyped(err) {
		classified = types.NewError(types.KindTimeout,
			fmt.Sprintf("attempt exceeded %s", c.opts.timeout)).
			WithProvider(provider).
			WithCause(err)
	} else {
		classified = types.Classify(err, provider)
	}

	c.fail(ctx, b, n, classified, r.now().Sub(start))
	return zero, classified.Retryable, classified
}

// reapLate 等待被放弃的 op 返回，并把迟到的成功结果交给 discard
func (c *call[T]) reapLate(done <-chan outcome[T]) {
	discard := c.opts.discard
	if discard == nil {
		return
	}
	go func() {
		if res := <-done; res.err == nil {
			discard(res.value)
		}
	}()
}

func isTyped(err error) bool {
	_, ok := types.AsError(err)
	return ok
}

func (c *call[T]) succeed(ctx context.Context, b *circuitbreaker.Breaker, n int, latency time.Duration) {
	r := c.router
	b.RecordSuccess()
	c.served = b.Provider()
	r.obs.attempt(ctx, b.Provider(), string(usage.OutcomeSuccess))
	r.recorder.Record(ctx, usage.Event{
		Provider:  b.Provider(),
		Operation: c.opts.operation,
		Outcome:   usage.OutcomeSuccess,
		Latency:   latency,
		Attempt:   n,
		Timestamp: r.now(),
	})
	r.logger.Debug("provider call succeeded",
		zap.String("provider", b.Provider()),
		zap.String("operation", c.opts.operation),
		zap.Int("attempt", n),
		zap.Duration("latency", latency),
	)
}

func (c *call[T]) fail(ctx context.Context, b *circuitbreaker.Breaker, n int, err *types.Error, latency time.Duration) {
	r := c.router
	b.RecordFailure()

	rec := types.NewErrorRecord(err, b.Provider(), n, r.now())
	c.records = append(c.records, rec)
	c.lastErr = err

	r.obs.attempt(ctx, b.Provider(), string(usage.OutcomeFailure))
	c.span.AddEvent("attempt.failed", trace.WithAttributes(
		attribute.String("provider", b.Provider()),
		attribute.String("kind", string(err.Kind)),
		attribute.Int("attempt", n),
	))
	r.recorder.Record(ctx, usage.Event{
		Provider:  b.Provider(),
		Operation: c.opts.operation,
		Outcome:   usage.OutcomeFailure,
		Latency:   latency,
		Attempt:   n,
		Timestamp: rec.Timestamp,
		Error:     &rec,
	})
	r.logger.Warn("provider call failed",
		zap.String("provider", b.Provider()),
		zap.String("operation", c.opts.operation),
		zap.Int("attempt", n),
		zap.String("kind", string(err.Kind)),
		zap.Bool("retryable", err.Retryable),
		zap.Error(err),
	)
}

func (c *call[T]) cancelled(err error) error {
	c.router.logger.Debug("router call cancelled",
		zap.String("operation", c.opts.operation),
		zap.Int("attempts", c.attemptCount),
	)
	return fmt.Errorf("router %s cancelled: %w", c.opts.operation, err)
}
