package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/voicebridge/types"
	"github.com/BaSui01/voicebridge/usage"

	"github.com/redis/go-redis/v9"
)

const (
	fieldSuccesses   = "successes"
	fieldFailures    = "failures"
	fieldLatency     = "latency_us"
	fieldLastSuccess = "last_success"
	kindPrefix       = "kind:"
)

// DefaultRecentErrors 每个 provider 保留的失败记录条数
const DefaultRecentErrors = 50

// Store 基于 Redis 的用量计数
type Store struct {
	client redis.Cmdable
	prefix string
	recent int64
}

// Option 配置 Store
type Option func(*Store)

// WithRecentErrors 设置保留的失败记录条数
func WithRecentErrors(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.recent = int64(n)
		}
	}
}

// New 创建 Store，prefix 为空时使用 "voicebridge:usage:"
func New(client redis.Cmdable, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "voicebridge:usage:"
	}
	s := &Store{client: client, prefix: prefix, recent: DefaultRecentErrors}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) providersKey() string             { return s.prefix + "providers" }
func (s *Store) statsKey(provider string) string  { return s.prefix + "provider:" + provider }
func (s *Store) errorsKey(provider string) string { return s.prefix + "errors:" + provider }

// Write 实现 usage.Sink，一次事件对应一次 pipeline
func (s *Store) Write(ctx context.Context, ev usage.Event) error {
	if ev.Provider == "" {
		return nil
	}
	key := s.statsKey(ev.Provider)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.providersKey(), ev.Provider)
		p.HIncrBy(ctx, key, fieldLatency, ev.Latency.Microseconds())
		switch ev.Outcome {
		case usage.OutcomeSuccess:
			p.HIncrBy(ctx, key, fieldSuccesses, 1)
			p.HSet(ctx, key, fieldLastSuccess, ev.Timestamp.UTC().Format(time.RFC3339Nano))
		case usage.OutcomeFailure:
			p.HIncrBy(ctx, key, fieldFailures, 1)
			if ev.Error != nil {
				p.HIncrBy(ctx, key, kindPrefix+string(ev.Error.Kind), 1)
				data, err := json.Marshal(ev.Error)
				if err != nil {
					return fmt.Errorf("encode error record: %w", err)
				}
				p.LPush(ctx, s.errorsKey(ev.Provider), data)
				p.LTrim(ctx, s.errorsKey(ev.Provider), 0, s.recent-1)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: record %s: %w", ev.Provider, err)
	}
	return nil
}

// Get 读取单个 provider 的累计统计；不存在时 ok 为 false
func (s *Store) Get(ctx context.Context, provider string) (stats usage.ProviderStats, ok bool, err error) {
	fields, err := s.client.HGetAll(ctx, s.statsKey(provider)).Result()
	if err != nil {
		return usage.ProviderStats{}, false, fmt.Errorf("redisstore: read %s: %w", provider, err)
	}
	if len(fields) == 0 {
		return usage.ProviderStats{}, false, nil
	}

	stats = usage.ProviderStats{Provider: provider, ByKind: make(map[types.ErrorKind]int64)}
	for name, raw := range fields {
		switch {
		case name == fieldSuccesses:
			stats.Successes, _ = strconv.ParseInt(raw, 10, 64)
		case name == fieldFailures:
			stats.Failures, _ = strconv.ParseInt(raw, 10, 64)
		case name == fieldLatency:
			us, _ := strconv.ParseInt(raw, 10, 64)
			stats.TotalLatency = time.Duration(us) * time.Microsecond
		case name == fieldLastSuccess:
			stats.LastSuccess, _ = time.Parse(time.RFC3339Nano, raw)
		case strings.HasPrefix(name, kindPrefix):
			n, _ := strconv.ParseInt(raw, 10, 64)
			stats.ByKind[types.ErrorKind(strings.TrimPrefix(name, kindPrefix))] = n
		}
	}

	recent, err := s.RecentErrors(ctx, provider, 1)
	if err != nil {
		return usage.ProviderStats{}, false, err
	}
	if len(recent) > 0 {
		stats.LastError = &recent[0]
	}
	return stats, true, nil
}

// Providers 返回出现过的 provider id，已排序
func (s *Store) Providers(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.providersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list providers: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// All 读取全部 provider 的统计
func (s *Store) All(ctx context.Context) (map[string]usage.ProviderStats, error) {
	ids, err := s.Providers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]usage.ProviderStats, len(ids))
	for _, id := range ids {
		st, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = st
		}
	}
	return out, nil
}

// RecentErrors 返回最近 n 条失败记录，新的在前
func (s *Store) RecentErrors(ctx context.Context, provider string, n int) ([]types.ErrorRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.errorsKey(provider), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read errors %s: %w", provider, err)
	}
	out := make([]types.ErrorRecord, 0, len(raw))
	for _, item := range raw {
		var rec types.ErrorRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Reset 删除某个 provider 的全部统计
func (s *Store) Reset(ctx context.Context, provider string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.statsKey(provider), s.errorsKey(provider))
		p.SRem(ctx, s.providersKey(), provider)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: reset %s: %w", provider, err)
	}
	return nil
}
