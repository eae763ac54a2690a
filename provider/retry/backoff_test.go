package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
	assert.Equal(t, time.Second, p.MaxJitter)
}

func TestPolicy_Normalize(t *testing.T) {
	p := Policy{BaseDelay: -1, MaxJitter: -5}.Normalize()
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
	assert.Equal(t, time.Duration(0), p.MaxJitter)
	assert.NotNil(t, p.Rand)
}

func TestPolicy_Delay(t *testing.T) {
	fixed := func(v float64) func() float64 { return func() float64 { return v } }

	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"first retry no jitter", Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Rand: fixed(0)}, 0, time.Second},
		{"exponential", Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Rand: fixed(0)}, 3, 8 * time.Second},
		{"jitter added", Policy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxJitter: time.Second, Rand: fixed(0.5)}, 1, 2500 * time.Millisecond},
		{"capped", Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, MaxJitter: time.Second, Rand: fixed(0.9)}, 10, 5 * time.Second},
		{"huge attempt does not overflow", Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Rand: fixed(0)}, 1000, 5 * time.Second},
		{"negative attempt treated as zero", Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Rand: fixed(0)}, -3, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestProperty_DelayBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := time.Duration(rapid.IntRange(1, 5000).Draw(rt, "base_ms")) * time.Millisecond
		maxDelay := time.Duration(rapid.IntRange(1, 60000).Draw(rt, "cap_ms")) * time.Millisecond
		attempt := rapid.IntRange(0, 64).Draw(rt, "attempt")

		d := Policy{BaseDelay: base, MaxDelay: maxDelay, MaxJitter: time.Second}.Normalize().Delay(attempt)
		if d > maxDelay {
			rt.Fatalf("delay %v exceeds cap %v", d, maxDelay)
		}
		if d < base && base <= maxDelay {
			rt.Fatalf("delay %v below base %v", d, base)
		}
	})
}

func TestPolicy_DelayConcurrentDefaultRand(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxJitter: 100 * time.Millisecond}.Normalize()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d := p.Delay(j % 4)
				assert.GreaterOrEqual(t, d, time.Millisecond)
				assert.Less(t, d, time.Second)
			}
		}()
	}
	wg.Wait()
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
