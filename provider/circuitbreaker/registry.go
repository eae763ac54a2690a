package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry 进程级的熔断器注册表：每个 provider id 懒加载一个 Breaker。
// 由启动代码创建并注入到 router，测试中每个用例可使用独立实例。
type Registry struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry 创建注册表，所有熔断器共享 config
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		config:   config,
		logger:   logger.With(zap.String("component", "circuit_breaker")),
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for provider, creating it on first reference.
func (r *Registry) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[provider]; ok {
		return b
	}
	b = New(provider, r.config, r.logger)
	r.breakers[provider] = b
	return b
}

// Lookup returns the breaker for provider without creating one.
func (r *Registry) Lookup(provider string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[provider]
	return b, ok
}

// Snapshots 返回所有已知熔断器的快照，按 provider 排序
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Reset 重置指定 provider 的熔断器，未知 provider 返回 false
func (r *Registry) Reset(provider string) bool {
	b, ok := r.Lookup(provider)
	if !ok {
		return false
	}
	b.Reset()
	return true
}
