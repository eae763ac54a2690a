package circuitbreaker

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// After threshold consecutive failures from CLOSED the breaker is OPEN, it
// rejects every check before the cooldown elapses, and then admits exactly
// one trial.
func TestProperty_BreakerMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("threshold failures open, cooldown gates, one trial", prop.ForAll(
		func(threshold int, cooldownMs int, checks int) bool {
			clock := newFakeClock()
			cooldown := time.Duration(cooldownMs) * time.Millisecond
			b := New("p", Config{Threshold: threshold, Cooldown: cooldown, Now: clock.Now}, zap.NewNop())

			for i := 0; i < threshold-1; i++ {
				b.RecordFailure()
				if b.State() != StateClosed {
					t.Logf("opened early after %d failures", i+1)
					return false
				}
			}
			b.RecordFailure()
			if b.State() != StateOpen {
				return false
			}

			step := cooldown / time.Duration(checks+1)
			for i := 0; i < checks; i++ {
				clock.Advance(step)
				if b.Allow() == nil {
					t.Logf("admitted before cooldown at check %d", i)
					return false
				}
			}

			clock.Advance(cooldown)
			if b.Allow() != nil {
				return false
			}
			admitted := 0
			for i := 0; i < checks+1; i++ {
				if b.Allow() == nil {
					admitted++
				}
			}
			return admitted == 0 && b.State() == StateHalfOpen
		},
		gen.IntRange(1, 20),
		gen.IntRange(10, 60000),
		gen.IntRange(0, 10),
	))

	properties.Property("any success resets the failure count", prop.ForAll(
		func(failures int) bool {
			b := New("p", Config{Threshold: 1000, Cooldown: time.Second}, zap.NewNop())
			for i := 0; i < failures; i++ {
				b.RecordFailure()
			}
			b.RecordSuccess()
			return b.Snapshot().ConsecutiveFailures == 0 && b.State() == StateClosed
		},
		gen.IntRange(0, 999),
	))

	properties.TestingRun(t)
}
