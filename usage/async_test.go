package usage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *memorySink) Write(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.events = append(s.events, ev)
	return nil
}

func TestAsync_WritesThroughSink(t *testing.T) {
	sink := &memorySink{}
	a := NewAsync("memory", sink, AsyncConfig{Workers: 1, QueueSize: 32}, zap.NewNop())

	for i := 0; i < 5; i++ {
		a.Record(context.Background(), Event{Provider: "openai", Outcome: OutcomeSuccess, Attempt: i + 1})
	}
	require.NoError(t, a.Close(context.Background()))

	require.Len(t, sink.events, 5)
	for i, ev := range sink.events {
		assert.Equal(t, i+1, ev.Attempt)
	}
	assert.Zero(t, a.Dropped())
}

func TestAsync_SinkFailureDoesNotReachCaller(t *testing.T) {
	sink := &memorySink{fail: true}
	a := NewAsync("memory", sink, AsyncConfig{}, nil)
	a.Record(context.Background(), Event{Provider: "openai"})
	require.NoError(t, a.Close(context.Background()))
	assert.Empty(t, sink.events)
}

func TestAsync_RecordAfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{}
	a := NewAsync("memory", sink, AsyncConfig{}, nil)
	require.NoError(t, a.Close(context.Background()))
	a.Record(context.Background(), Event{Provider: "openai"})
	assert.Empty(t, sink.events)
}
