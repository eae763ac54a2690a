package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_EnforcesLimit(t *testing.T) {
	m := NewManager(2, zap.NewNop())

	a := New(Config{}, nil, nil)
	b := New(Config{}, nil, nil)
	c := New(Config{}, nil, nil)

	unregA, err := m.Register(a)
	require.NoError(t, err)
	_, err = m.Register(b)
	require.NoError(t, err)
	assert.False(t, m.Available())

	_, err = m.Register(c)
	assert.ErrorIs(t, err, ErrSessionLimit)
	assert.Equal(t, 2, m.Count())

	unregA()
	unregA()
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Available())

	_, ok := m.Get(b.ID())
	assert.True(t, ok)
	_, ok = m.Get(a.ID())
	assert.False(t, ok)
}

func TestManager_Unlimited(t *testing.T) {
	m := NewManager(0, nil)
	for i := 0; i < 10; i++ {
		_, err := m.Register(New(Config{}, nil, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 10, m.Count())
	assert.True(t, m.Available())
}

func TestManager_ListAndCloseAll(t *testing.T) {
	m := NewManager(4, zap.NewNop())

	h := start(t, Config{})
	unregister, err := m.Register(h.s)
	require.NoError(t, err)
	h.ready(t)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, h.s.ID(), list[0].ID)
	assert.Equal(t, "openai", list[0].Provider)
	assert.Equal(t, StateConfigured, list[0].State)

	go func() {
		<-h.s.Done()
		unregister()
	}()

	assert.Equal(t, 1, m.CloseAll())
	require.NoError(t, h.result(t))
	assert.Equal(t, StateClosed, h.s.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, m.Wait(ctx))
	assert.Equal(t, 0, m.Count())
}

func TestManager_WaitTimesOut(t *testing.T) {
	m := NewManager(1, nil)
	_, err := m.Register(New(Config{}, nil, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, m.Wait(ctx))
}
