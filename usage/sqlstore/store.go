package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/voicebridge/types"
	"github.com/BaSui01/voicebridge/usage"

	"gorm.io/gorm"
)

// ErrorRow provider_errors 表的一行
type ErrorRow struct {
	ID        uint      `gorm:"primaryKey"`
	Provider  string    `gorm:"size:64;not null;index:idx_provider_time"`
	Operation string    `gorm:"size:64"`
	Kind      string    `gorm:"size:32;not null;index"`
	Attempt   int       `gorm:"not null"`
	Retryable bool      `gorm:"not null"`
	LatencyMS int64     `gorm:"column:latency_ms"`
	Message   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index:idx_provider_time"`
}

// TableName 固定表名
func (ErrorRow) TableName() string { return "provider_errors" }

// Record 转为 types.ErrorRecord
func (r ErrorRow) Record() types.ErrorRecord {
	return types.ErrorRecord{
		Kind:      types.ErrorKind(r.Kind),
		Provider:  r.Provider,
		Attempt:   r.Attempt,
		Retryable: r.Retryable,
		Timestamp: r.CreatedAt,
		Message:   r.Message,
	}
}

// Store 失败记录存储
type Store struct {
	db *gorm.DB
}

// New 创建 Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 创建或更新表结构
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ErrorRow{}); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Write 实现 usage.Sink，只持久化带 ErrorRecord 的失败事件
func (s *Store) Write(ctx context.Context, ev usage.Event) error {
	if ev.Outcome != usage.OutcomeFailure || ev.Error == nil {
		return nil
	}
	rec := ev.Error
	row := ErrorRow{
		Provider:  rec.Provider,
		Operation: ev.Operation,
		Kind:      string(rec.Kind),
		Attempt:   rec.Attempt,
		Retryable: rec.Retryable,
		LatencyMS: ev.Latency.Milliseconds(),
		Message:   rec.Message,
		CreatedAt: rec.Timestamp,
	}
	if row.Provider == "" {
		row.Provider = ev.Provider
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlstore: insert %s error: %w", row.Provider, err)
	}
	return nil
}

// Query 查询条件，零值字段不参与过滤
type Query struct {
	Provider string
	Kind     types.ErrorKind
	Since    time.Time
	Limit    int
}

// Recent 按时间倒序返回失败记录，Limit <= 0 时取 100 条
func (s *Store) Recent(ctx context.Context, q Query) ([]types.ErrorRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []ErrorRow
	err := s.filter(ctx, q).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query: %w", err)
	}

	out := make([]types.ErrorRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out, nil
}

// RecentErrors 返回单个 provider 最近 n 条失败记录
func (s *Store) RecentErrors(ctx context.Context, provider string, n int) ([]types.ErrorRecord, error) {
	return s.Recent(ctx, Query{Provider: provider, Limit: n})
}

// CountByKind 按错误类型聚合失败次数
func (s *Store) CountByKind(ctx context.Context, q Query) (map[types.ErrorKind]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := s.filter(ctx, q).
		Select("kind, COUNT(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: aggregate: %w", err)
	}

	out := make(map[types.ErrorKind]int64, len(rows))
	for _, r := range rows {
		out[types.ErrorKind(r.Kind)] = r.Count
	}
	return out, nil
}

// Prune 删除 before 之前的记录，返回删除条数
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&ErrorRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("sqlstore: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) filter(ctx context.Context, q Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&ErrorRow{})
	if q.Provider != "" {
		tx = tx.Where("provider = ?", q.Provider)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", string(q.Kind))
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	return tx
}
