package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	defaultCheckTimeout = 3 * time.Second
)

// HealthCheck 就绪检查项
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// optionalCheck 由可降级依赖实现，失败时整体状态为 degraded 而非 unhealthy
type optionalCheck interface {
	Optional() bool
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Sessions  *int                   `json:"active_sessions,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass / fail
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	logger       *zap.Logger
	started      time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checks   []HealthCheck
	sessions func() int
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:       logger.With(zap.String("handler", "health")),
		started:      time.Now(),
		checkTimeout: defaultCheckTimeout,
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// ReportSessions 让存活探针附带当前活跃会话数
func (h *HealthHandler) ReportSessions(count func() int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = count
}

// HandleHealth 处理 /health 与 /healthz，只表示进程存活
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	}
	h.mu.RLock()
	if h.sessions != nil {
		n := h.sessions()
		status.Sessions = &n
	}
	h.mu.RUnlock()

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 处理 /ready 与 /readyz。
// 检查并发执行；关键检查失败返回 503，仅可选检查失败时返回 200 + degraded。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	g, ctx := errgroup.WithContext(r.Context())
	for i, check := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		res := results[i]
		status.Checks[check.Name()] = res
		if res.Status == "pass" {
			continue
		}
		if res.Optional {
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
			continue
		}
		status.Status = StatusUnhealthy
	}

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, check HealthCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	res := CheckResult{Status: "pass"}
	if o, ok := check.(optionalCheck); ok {
		res.Optional = o.Optional()
	}

	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)
	res.Latency = latency.String()

	if err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Warn("readiness check failed",
			zap.String("check", check.Name()),
			zap.Bool("optional", res.Optional),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}
	return res
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// CheckFunc 将函数适配为 HealthCheck
type CheckFunc struct {
	name     string
	optional bool
	check    func(ctx context.Context) error
}

// NewCheck 创建关键检查，失败时服务不就绪
func NewCheck(name string, check func(ctx context.Context) error) CheckFunc {
	return CheckFunc{name: name, check: check}
}

// NewOptionalCheck 创建可降级检查，用于 Redis、数据库等可选存储
func NewOptionalCheck(name string, check func(ctx context.Context) error) CheckFunc {
	return CheckFunc{name: name, optional: true, check: check}
}

func (c CheckFunc) Name() string { return c.name }

func (c CheckFunc) Optional() bool { return c.optional }

func (c CheckFunc) Check(ctx context.Context) error { return c.check(ctx) }
