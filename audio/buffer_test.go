package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_FlushConcatenatesBeforeDecoding(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	for _, f := range []string{"QQ==", "Qg==", "Qw=="} {
		require.NoError(t, b.Append(f))
	}
	assert.True(t, b.Pending())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 12, b.Size())

	frame, err := b.Flush()
	require.NoError(t, err)
	assert.Equal(t, []int16{0x4241}, frame.Samples)
	assert.Equal(t, 3, frame.Fragments)
	assert.True(t, frame.OddByte)

	assert.False(t, b.Pending())
	assert.Equal(t, 0, b.Size())
}

func TestBuffer_PreservesArrivalOrder(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	require.NoError(t, b.Append(EncodePCM16([]int16{1, 2, 3})))
	require.NoError(t, b.Append(EncodePCM16([]int16{4})))
	require.NoError(t, b.Append(EncodePCM16([]int16{5, 6})))

	frame, err := b.Flush()
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, frame.Samples)
	assert.False(t, frame.OddByte)
}

func TestBuffer_Overflow(t *testing.T) {
	t.Parallel()

	b := NewBuffer(8)
	require.NoError(t, b.Append("QUJD"))
	require.NoError(t, b.Append(""))
	err := b.Append("QUJDRA==")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferOverflow))
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_FlushErrorStillClears(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	require.NoError(t, b.Append("A"))
	_, err := b.Flush()
	require.Error(t, err)
	assert.False(t, b.Pending())
}
