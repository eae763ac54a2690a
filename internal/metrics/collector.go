// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/session"
	"github.com/BaSui01/voicebridge/usage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	namespace string

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Provider 指标
	providerAttemptsTotal *prometheus.CounterVec
	providerLatency       *prometheus.HistogramVec
	providerErrorsTotal   *prometheus.CounterVec

	// 熔断器指标
	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	// 会话指标
	sessionsActive          prometheus.Gauge
	sessionsTotal           prometheus.Counter
	sessionsEnded           *prometheus.CounterVec
	sessionStateTransitions *prometheus.CounterVec

	// 存储指标
	storageUp *prometheus.GaugeVec

	logger *zap.Logger
	mu     sync.Mutex
	sinks  map[string]struct{}
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
		sinks:     make(map[string]struct{}),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Provider 指标
	c.providerAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Total number of provider attempts made by the router",
		},
		[]string{"provider", "operation", "outcome"},
	)

	c.providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Provider attempt latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	c.providerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of failed provider attempts by error kind",
		},
		[]string{"provider", "kind"},
	)

	// 熔断器指标
	c.breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_state_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from_state", "to_state"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"provider"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of realtime sessions currently running",
		},
	)

	c.sessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of realtime sessions started",
		},
	)

	c.sessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of realtime sessions ended by final state",
		},
		[]string{"state"},
	)

	c.sessionStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of realtime session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.storageUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_up",
			Help:      "Whether an optional usage storage backend is reachable (1) or not (0)",
		},
		[]string{"backend"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔌 Provider 指标记录
// =============================================================================

// Record 实现 usage.Recorder，每次 provider 尝试调用一次
func (c *Collector) Record(_ context.Context, ev usage.Event) {
	c.providerAttemptsTotal.WithLabelValues(ev.Provider, ev.Operation, string(ev.Outcome)).Inc()
	c.providerLatency.WithLabelValues(ev.Provider, ev.Operation).Observe(ev.Latency.Seconds())
	if ev.Outcome == usage.OutcomeFailure && ev.Error != nil {
		c.providerErrorsTotal.WithLabelValues(ev.Provider, string(ev.Error.Kind)).Inc()
	}
}

// BreakerStateChanged 签名与 circuitbreaker.Config.OnStateChange 一致
func (c *Collector) BreakerStateChanged(provider string, from, to circuitbreaker.State) {
	c.breakerTransitions.WithLabelValues(provider, from.String(), to.String()).Inc()
	c.breakerState.WithLabelValues(provider).Set(float64(to))
}

// =============================================================================
// 🎙️ 会话指标记录
// =============================================================================

// SessionStateChanged 签名与 session.Config.OnStateChange 一致
func (c *Collector) SessionStateChanged(_ string, from, to session.State) {
	c.sessionStateTransitions.WithLabelValues(from.String(), to.String()).Inc()

	if from == session.StateInit {
		c.sessionsTotal.Inc()
		c.sessionsActive.Inc()
	}
	if to.Terminal() && !from.Terminal() {
		c.sessionsActive.Dec()
		c.sessionsEnded.WithLabelValues(to.String()).Inc()
	}
}

// =============================================================================
// 📥 用量 sink 指标
// =============================================================================

// ObserveDroppedUsage 为异步用量 sink 注册丢弃计数，同名 sink 只注册一次
func (c *Collector) ObserveDroppedUsage(sink string, dropped func() int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sinks[sink]; ok {
		return
	}
	c.sinks[sink] = struct{}{}

	promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace:   c.namespace,
			Name:        "usage_events_dropped_total",
			Help:        "Usage events dropped because the sink queue was full",
			ConstLabels: prometheus.Labels{"sink": sink},
		},
		func() float64 { return float64(dropped()) },
	)
}

// StorageHealthChanged 返回适配 cache/database OnHealthChange 的回调
func (c *Collector) StorageHealthChanged(backend string) func(healthy bool) {
	return func(healthy bool) {
		v := 0.0
		if healthy {
			v = 1
		}
		c.storageUp.WithLabelValues(backend).Set(v)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
