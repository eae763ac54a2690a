package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy 定义指数退避策略
//
//	delay(attempt) = min(BaseDelay * 2^attempt + U[0, MaxJitter), MaxDelay)
type Policy struct {
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY" json:"base_delay"` // 初始延迟
	MaxDelay  time.Duration `yaml:"max_delay" env:"MAX_DELAY" json:"max_delay"`    // 延迟上限
	MaxJitter time.Duration `yaml:"max_jitter" env:"MAX_JITTER" json:"max_jitter"` // 抖动上界（不含）

	// Rand 返回 [0,1) 的随机数，测试中可替换
	Rand func() float64 `yaml:"-" json:"-"`
}

// DefaultPolicy 返回默认退避策略
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay: 1 * time.Second,
		MaxDelay:  10 * time.Second,
		MaxJitter: 1 * time.Second,
	}
}

// Normalize 修正非法参数：非正的延迟取默认值，负的 MaxJitter 视为 0
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// Delay 计算第 attempt 次失败（从 0 开始）之后的等待时间
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^attempt 在超过上限后不再增长，避免溢出
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxJitter > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		delay += time.Duration(r() * float64(p.MaxJitter))
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Sleep 等待 d，期间监听 context 取消
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
