package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/voicebridge/types"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedProvider marks lookups against a registered placeholder.
	ErrUnsupportedProvider = errors.New("provider adapter is not implemented")
	// ErrDuplicateProvider is returned when an id is registered twice.
	ErrDuplicateProvider = errors.New("provider already registered")
)

// Unsupported 未实现的 provider 占位。注册时即暴露为不可用，而不是在调用时才失败。
type Unsupported struct {
	Provider string
	Caps     []Capability
	Reason   string
}

func (u Unsupported) ID() string                 { return u.Provider }
func (u Unsupported) Capabilities() []Capability { return u.Caps }

type registryEntry struct {
	desc    Descriptor
	adapter Adapter
}

// Registry 将 provider id 映射到描述信息和适配器。启动时填充，之后只读。
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry 创建 provider 注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.With(zap.String("component", "provider_registry")),
		entries: make(map[string]registryEntry),
	}
}

// Register 注册适配器。desc 的 ID 与 Capabilities 为空时取自适配器。
func (r *Registry) Register(adapter Adapter, desc Descriptor) error {
	if adapter == nil || adapter.ID() == "" {
		return fmt.Errorf("register provider: adapter with empty id")
	}
	id := adapter.ID()
	if desc.ID == "" {
		desc.ID = id
	}
	if desc.ID != id {
		return fmt.Errorf("register provider %q: descriptor id %q mismatch", id, desc.ID)
	}
	if len(desc.Capabilities) == 0 {
		desc.Capabilities = adapter.Capabilities()
	}

	desc.Supported = true
	if u, ok := adapter.(Unsupported); ok {
		desc.Supported = false
		desc.Reason = u.Reason
		if desc.Reason == "" {
			desc.Reason = ErrUnsupportedProvider.Error()
		}
		r.logger.Warn("provider registered as unsupported",
			zap.String("provider", id),
			zap.String("reason", desc.Reason),
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("register provider %q: %w", id, ErrDuplicateProvider)
	}
	r.entries[id] = registryEntry{desc: desc, adapter: adapter}

	r.logger.Info("provider registered",
		zap.String("provider", id),
		zap.Any("capabilities", desc.Capabilities),
		zap.Bool("supported", desc.Supported),
	)
	return nil
}

// Descriptor returns the metadata for id.
func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.desc, ok
}

// Descriptors 返回全部描述信息，按 id 排序
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs 返回支持 capability 且已实现的 provider id
func (r *Registry) IDs(c Capability) []string {
	var ids []string
	for _, d := range r.Descriptors() {
		if d.Supported && d.Has(c) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func (r *Registry) lookup(id string, c Capability) (Adapter, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, types.NewError(types.KindNotFound, "unknown provider").WithProvider(id)
	}
	if !e.desc.Supported {
		return nil, types.NewError(types.KindNotFound, e.desc.Reason).
			WithProvider(id).
			WithCause(ErrUnsupportedProvider)
	}
	if !e.desc.Has(c) {
		return nil, types.NewError(types.KindNotFound,
			fmt.Sprintf("provider does not support %s", c)).WithProvider(id)
	}
	return e.adapter, nil
}

// Realtime 查找实时适配器
func (r *Registry) Realtime(id string) (RealtimeAdapter, error) {
	a, err := r.lookup(id, CapabilityRealtime)
	if err != nil {
		return nil, err
	}
	rt, ok := a.(RealtimeAdapter)
	if !ok {
		return nil, types.NewError(types.KindNotFound, "adapter has no realtime implementation").WithProvider(id)
	}
	return rt, nil
}

// Synthesizer 查找 TTS 适配器
func (r *Registry) Synthesizer(id string) (Synthesizer, error) {
	a, err := r.lookup(id, CapabilityTTS)
	if err != nil {
		return nil, err
	}
	s, ok := a.(Synthesizer)
	if !ok {
		return nil, types.NewError(types.KindNotFound, "adapter has no tts implementation").WithProvider(id)
	}
	return s, nil
}

// Transcriber 查找 STT 适配器
func (r *Registry) Transcriber(id string) (Transcriber, error) {
	a, err := r.lookup(id, CapabilitySTT)
	if err != nil {
		return nil, err
	}
	t, ok := a.(Transcriber)
	if !ok {
		return nil, types.NewError(types.KindNotFound, "adapter has no stt implementation").WithProvider(id)
	}
	return t, nil
}
