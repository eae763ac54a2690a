package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("cache manager is closed")

// Config Redis 连接配置
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"-"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`

	// DialTimeout 建连与首次探测超时，<=0 使用 5s
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// HealthCheckInterval 后台探测间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// OnHealthChange 探测结果发生翻转时调用，首次连接成功也会回调一次
	OnHealthChange func(healthy bool) `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 持有 Redis 客户端并跟踪其可用性
type Manager struct {
	client  *redis.Client
	config  Config
	logger  *zap.Logger
	healthy atomic.Bool

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewManager 创建客户端并探测连接，不可达时返回错误
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache"), zap.String("addr", config.Addr)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.setHealthy(true, nil)

	if config.HealthCheckInterval > 0 {
		go m.monitor()
	} else {
		close(m.done)
	}

	m.logger.Info("redis connected", zap.Int("pool_size", config.PoolSize))
	return m, nil
}

// Client 返回底层客户端
func (m *Manager) Client() *redis.Client { return m.client }

// Healthy 最近一次探测是否成功
func (m *Manager) Healthy() bool { return m.healthy.Load() }

// Ping 同步探测
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close 停止探测并关闭连接池，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	<-m.done
	m.logger.Info("closing redis client")
	return m.client.Close()
}

func (m *Manager) monitor() {
	defer close(m.done)
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
		err := m.Ping(ctx)
		cancel()
		if errors.Is(err, ErrClosed) {
			return
		}
		m.setHealthy(err == nil, err)
	}
}

// setHealthy 只在状态翻转时记录日志与回调
func (m *Manager) setHealthy(healthy bool, err error) {
	if m.healthy.Swap(healthy) == healthy {
		return
	}
	if healthy {
		m.logger.Info("redis reachable")
	} else {
		m.logger.Error("redis unreachable", zap.Error(err))
	}
	if m.config.OnHealthChange != nil {
		m.config.OnHealthChange(healthy)
	}
}
