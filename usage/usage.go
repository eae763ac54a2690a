package usage

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/voicebridge/types"
)

// Outcome 调用结果
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event 一次 provider 调用尝试的用量记录
type Event struct {
	Provider  string             `json:"provider"`
	Operation string             `json:"operation"`
	Outcome   Outcome            `json:"outcome"`
	Latency   time.Duration      `json:"latency"`
	Attempt   int                `json:"attempt"`
	Timestamp time.Time          `json:"timestamp"`
	Error     *types.ErrorRecord `json:"error,omitempty"`
}

// Recorder 用量统计接收端，只写、fire-and-forget：实现不得阻塞调用方
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event)

func (f RecorderFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards every event.
var Nop Recorder = RecorderFunc(func(context.Context, Event) {})

// multi 将事件扇出到多个接收端
type multi []Recorder

// Multi 组合多个 Recorder，nil 项被忽略
func Multi(recorders ...Recorder) Recorder {
	var out multi
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return Nop
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Record(ctx, ev)
	}
}

// ProviderStats 单个 provider 的累计统计
type ProviderStats struct {
	Provider     string                    `json:"provider"`
	Successes    int64                     `json:"successes"`
	Failures     int64                     `json:"failures"`
	TotalLatency time.Duration             `json:"total_latency"`
	ByKind       map[types.ErrorKind]int64 `json:"by_kind,omitempty"`
	LastError    *types.ErrorRecord        `json:"last_error,omitempty"`
	LastSuccess  time.Time                 `json:"last_success,omitempty"`
}

// AverageLatency returns the mean latency over all recorded attempts.
func (s ProviderStats) AverageLatency() time.Duration {
	n := s.Successes + s.Failures
	if n == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(n)
}

// Stats 进程内用量统计，每个 provider 一个互斥边界
type Stats struct {
	mu      sync.RWMutex
	entries map[string]*statsEntry
}

type statsEntry struct {
	mu    sync.Mutex
	stats ProviderStats
}

// NewStats 创建进程内统计
func NewStats() *Stats {
	return &Stats{entries: make(map[string]*statsEntry)}
}

func (s *Stats) entry(provider string) *statsEntry {
	s.mu.RLock()
	e, ok := s.entries[provider]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[provider]; ok {
		return e
	}
	e = &statsEntry{stats: ProviderStats{Provider: provider, ByKind: make(map[types.ErrorKind]int64)}}
	s.entries[provider] = e
	return e
}

// Record 实现 Recorder
func (s *Stats) Record(_ context.Context, ev Event) {
	e := s.entry(ev.Provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalLatency += ev.Latency
	switch ev.Outcome {
	case OutcomeSuccess:
		e.stats.Successes++
		e.stats.LastSuccess = ev.Timestamp
	case OutcomeFailure:
		e.stats.Failures++
		if ev.Error != nil {
			e.stats.ByKind[ev.Error.Kind]++
			rec := *ev.Error
			e.stats.LastError = &rec
		}
	}
}

// Get returns a copy of one provider's stats.
func (s *Stats) Get(provider string) (ProviderStats, bool) {
	s.mu.RLock()
	e, ok := s.entries[provider]
	s.mu.RUnlock()
	if !ok {
		return ProviderStats{}, false
	}
	return e.snapshot(), true
}

// All returns a copy of every provider's stats.
func (s *Stats) All() map[string]ProviderStats {
	s.mu.RLock()
	list := make([]*statsEntry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.RUnlock()

	out := make(map[string]ProviderStats, len(list))
	for _, e := range list {
		snap := e.snapshot()
		out[snap.Provider] = snap
	}
	return out
}

func (e *statsEntry) snapshot() ProviderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.ByKind = make(map[types.ErrorKind]int64, len(e.stats.ByKind))
	for k, v := range e.stats.ByKind {
		out.ByKind[k] = v
	}
	if e.stats.LastError != nil {
		rec := *e.stats.LastError
		out.LastError = &rec
	}
	return out
}
