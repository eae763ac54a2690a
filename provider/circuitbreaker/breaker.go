package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（仅允许一次试探调用）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int `yaml:"threshold" env:"THRESHOLD" json:"threshold"`

	// Cooldown 熔断恢复等待时间（从 Open -> HalfOpen）
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN" json:"cooldown"`

	// Now 时钟函数，测试中可替换
	Now func() time.Time `yaml:"-" json:"-"`

	// OnStateChange 状态变更回调，在锁外同步调用
	OnStateChange func(provider string, from, to State) `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// ErrCircuitOpen is returned by Allow when the provider may not be attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	Provider            string        `json:"provider"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
	Cooldown            time.Duration `json:"cooldown"`
	TrialInFlight       bool          `json:"trial_in_flight,omitempty"`
}

// Breaker 单个 provider 的熔断器
type Breaker struct {
	provider string
	config   Config
	logger   *zap.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// New 创建熔断器
func New(provider string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		provider: provider,
		config:   config.normalized(),
		logger:   logger.With(zap.String("provider", provider)),
		state:    StateClosed,
	}
}

// Provider returns the id this breaker guards.
func (b *Breaker) Provider() string { return b.provider }

// Allow 是会产生副作用的可用性检查：
// OPEN 且冷却期已过时转入 HALF_OPEN 并占用唯一的试探名额。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from, to State
	changed := false

	err := func() error {
		switch b.state {
		case StateClosed:
			return nil
		case StateOpen:
			if b.config.Now().Sub(b.openedAt) < b.config.Cooldown {
				return ErrCircuitOpen
			}
			from, to, changed = b.state, StateHalfOpen, true
			b.state = StateHalfOpen
			b.trialInFlight = true
			b.logger.Info("circuit breaker half-open, admitting trial")
			return nil
		case StateHalfOpen:
			if b.trialInFlight {
				return ErrCircuitOpen
			}
			b.trialInFlight = true
			return nil
		default:
			return ErrCircuitOpen
		}
	}()
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return err
}

// Available 无副作用地判断是否可以发起调用
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return b.config.Now().Sub(b.openedAt) >= b.config.Cooldown
	case StateHalfOpen:
		return !b.trialInFlight
	default:
		return false
	}
}

// RecordSuccess 记录一次成功：失败计数清零，非 CLOSED 状态恢复为 CLOSED
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.consecutiveFailures = 0
	b.trialInFlight = false
	b.state = StateClosed
	b.openedAt = time.Time{}
	b.mu.Unlock()

	if from != StateClosed {
		b.logger.Info("circuit breaker closed", zap.String("from_state", from.String()))
		b.notify(from, StateClosed)
	}
}

// RecordFailure 记录一次失败
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.Threshold {
			b.state = StateOpen
			b.openedAt = b.config.Now()
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.consecutiveFailures),
				zap.Int("threshold", b.config.Threshold),
			)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.config.Now()
		b.trialInFlight = false
		if b.consecutiveFailures < b.config.Threshold {
			b.consecutiveFailures = b.config.Threshold
		}
		b.logger.Warn("circuit breaker trial failed, reopening",
			zap.Int("failure_count", b.consecutiveFailures),
		)
	case StateOpen:
		// 熔断前已发出的调用晚到的失败，不刷新 openedAt
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// Release 归还未完成的半开试探名额（调用方放弃了尝试，结果未知）
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// State 获取当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 返回当前状态快照
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Provider:            b.provider,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		Cooldown:            b.config.Cooldown,
		TrialInFlight:       b.trialInFlight,
	}
	if b.state != StateClosed && !b.openedAt.IsZero() {
		at := b.openedAt
		s.OpenedAt = &at
	}
	return s
}

// Reset 重置熔断器（手动恢复）
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
	b.trialInFlight = false
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset", zap.String("from_state", from.String()))
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.provider, from, to)
	}
}
