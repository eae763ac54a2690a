package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSessionLimit 活跃会话数已达上限
var ErrSessionLimit = errors.New("session: too many active sessions")

// Info 活跃会话的只读快照
type Info struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider,omitempty"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager 跟踪活跃会话并限制并发数量
type Manager struct {
	max    int
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager 创建会话管理器，max <= 0 表示不限制
func NewManager(max int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		max:      max,
		logger:   logger.With(zap.String("component", "session_manager")),
		sessions: make(map[string]*Session),
	}
}

// Available reports whether another session can be registered right now.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max <= 0 || len(m.sessions) < m.max
}

// Register 登记会话。返回的 unregister 可重复调用。
func (m *Manager) Register(s *Session) (unregister func(), err error) {
	m.mu.Lock()
	if m.max > 0 && len(m.sessions) >= m.max {
		m.mu.Unlock()
		m.logger.Warn("session limit reached", zap.Int("max", m.max))
		return nil, ErrSessionLimit
	}
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	active := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("session registered", zap.String("session_id", s.ID()), zap.Int("active", active))

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.sessions[s.ID()] == s {
				delete(m.sessions, s.ID())
			}
			m.mu.Unlock()
			m.wg.Done()
		})
	}, nil
}

// Get 按 id 查找活跃会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List 返回活跃会话快照，按创建时间排序
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{
			ID:        s.ID(),
			Provider:  s.Provider(),
			State:     s.State(),
			CreatedAt: s.CreatedAt(),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CloseAll 关闭全部活跃会话，返回关闭数量
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Close()
		}(s)
	}
	wg.Wait()

	if len(all) > 0 {
		m.logger.Info("closed active sessions", zap.Int("count", len(all)))
	}
	return len(all)
}

// Wait 等待全部会话注销，ctx 结束时返回 false
func (m *Manager) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
