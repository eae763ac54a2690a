package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/voicebridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Record(t *testing.T) {
	s := NewStats()
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, Event{Provider: "p1", Outcome: OutcomeSuccess, Latency: 100 * time.Millisecond, Timestamp: now})
	s.Record(ctx, Event{
		Provider: "p1",
		Outcome:  OutcomeFailure,
		Latency:  300 * time.Millisecond,
		Error:    &types.ErrorRecord{Kind: types.KindTimeout, Provider: "p1", Attempt: 1},
	})

	got, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Successes)
	assert.Equal(t, int64(1), got.Failures)
	assert.Equal(t, 200*time.Millisecond, got.AverageLatency())
	assert.Equal(t, int64(1), got.ByKind[types.KindTimeout])
	require.NotNil(t, got.LastError)
	assert.Equal(t, types.KindTimeout, got.LastError.Kind)
	assert.Equal(t, now, got.LastSuccess)

	_, ok = s.Get("p2")
	assert.False(t, ok)
}

func TestStats_SnapshotIsCopy(t *testing.T) {
	s := NewStats()
	s.Record(context.Background(), Event{Provider: "p1", Outcome: OutcomeFailure, Error: &types.ErrorRecord{Kind: types.KindNetwork}})

	snap := s.All()["p1"]
	snap.ByKind[types.KindNetwork] = 99

	again, _ := s.Get("p1")
	assert.Equal(t, int64(1), again.ByKind[types.KindNetwork])
	assert.Equal(t, time.Duration(0), ProviderStats{}.AverageLatency())
}

func TestStats_Concurrent(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := "a"
			if i%2 == 0 {
				p = "b"
			}
			for j := 0; j < 50; j++ {
				s.Record(context.Background(), Event{Provider: p, Outcome: OutcomeSuccess})
			}
		}(i)
	}
	wg.Wait()

	all := s.All()
	assert.Equal(t, int64(500), all["a"].Successes)
	assert.Equal(t, int64(500), all["b"].Successes)
}

func TestMulti(t *testing.T) {
	var got []string
	r1 := RecorderFunc(func(_ context.Context, ev Event) { got = append(got, "r1:"+ev.Provider) })
	r2 := RecorderFunc(func(_ context.Context, ev Event) { got = append(got, "r2:"+ev.Provider) })

	Multi(r1, nil, r2).Record(context.Background(), Event{Provider: "p"})
	assert.Equal(t, []string{"r1:p", "r2:p"}, got)

	assert.NotPanics(t, func() { Multi().Record(context.Background(), Event{}) })
	assert.NotPanics(t, func() { Multi(nil).Record(context.Background(), Event{}) })
}
