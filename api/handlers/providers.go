package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/types"
	"github.com/BaSui01/voicebridge/usage"

	"go.uber.org/zap"
)

// =============================================================================
// 🧭 Provider 状态 Handler
// =============================================================================

// StatsSource 进程内用量统计
type StatsSource interface {
	Get(provider string) (usage.ProviderStats, bool)
}

// ErrorHistory 持久化的失败记录，Redis 与 SQL 存储均实现
type ErrorHistory interface {
	RecentErrors(ctx context.Context, provider string, n int) ([]types.ErrorRecord, error)
}

// ProviderStatus GET /v1/providers 中的单项
type ProviderStatus struct {
	provider.Descriptor
	Breaker *circuitbreaker.Snapshot `json:"breaker,omitempty"`
	Usage   *usage.ProviderStats     `json:"usage,omitempty"`
}

// ProvidersHandler 汇总 provider 描述、熔断状态与用量
type ProvidersHandler struct {
	registry *provider.Registry
	breakers *circuitbreaker.Registry
	stats    StatsSource
	history  ErrorHistory
	logger   *zap.Logger
}

// NewProvidersHandler 创建处理器；stats 与 history 可为 nil
func NewProvidersHandler(registry *provider.Registry, breakers *circuitbreaker.Registry, stats StatsSource, history ErrorHistory, logger *zap.Logger) *ProvidersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvidersHandler{
		registry: registry,
		breakers: breakers,
		stats:    stats,
		history:  history,
		logger:   logger.With(zap.String("handler", "providers")),
	}
}

func (h *ProvidersHandler) status(d provider.Descriptor) ProviderStatus {
	st := ProviderStatus{Descriptor: d}
	if b, ok := h.breakers.Lookup(d.ID); ok {
		snap := b.Snapshot()
		st.Breaker = &snap
	}
	if h.stats != nil {
		if ps, ok := h.stats.Get(d.ID); ok {
			st.Usage = &ps
		}
	}
	return st
}

// HandleList 处理 GET /v1/providers
func (h *ProvidersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	descs := h.registry.Descriptors()
	out := make([]ProviderStatus, 0, len(descs))
	for _, d := range descs {
		out = append(out, h.status(d))
	}
	WriteSuccess(w, r, out)
}

// HandleGet 处理 GET /v1/providers/{id}
func (h *ProvidersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, ok := h.registry.Descriptor(r.PathValue("id"))
	if !ok {
		WriteError(w, r, types.NewError(types.KindNotFound, "unknown provider").WithProvider(r.PathValue("id")), h.logger)
		return
	}
	WriteSuccess(w, r, h.status(d))
}

// HandleErrors 处理 GET /v1/providers/{id}/errors?limit=n
func (h *ProvidersHandler) HandleErrors(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.registry.Descriptor(id); !ok {
		WriteError(w, r, types.NewError(types.KindNotFound, "unknown provider").WithProvider(id), h.logger)
		return
	}
	if h.history == nil {
		WriteErrorMessage(w, r, http.StatusNotImplemented, CodeUnavailable, "error history storage is not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := h.history.RecentErrors(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to load error history", zap.String("provider", id), zap.Error(err))
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, CodeUnavailable, "error history is unavailable")
		return
	}
	if recs == nil {
		recs = []types.ErrorRecord{}
	}
	WriteSuccess(w, r, recs)
}

// HandleResetBreaker 处理 POST /v1/providers/{id}/breaker/reset，将熔断器强制恢复为关闭状态
func (h *ProvidersHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.breakers.Reset(id) {
		WriteError(w, r, types.NewError(types.KindNotFound, "provider has no breaker yet").WithProvider(id), h.logger)
		return
	}
	h.logger.Info("breaker reset by operator", zap.String("provider", id))
	b, _ := h.breakers.Lookup(id)
	WriteSuccess(w, r, b.Snapshot())
}
