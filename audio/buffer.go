package audio

import (
	"errors"
	"fmt"
)

// DefaultMaxBufferBytes bounds pending encoded output (≈ 4 MiB of base64,
// a little over a minute of 24 kHz mono PCM16).
const DefaultMaxBufferBytes = 4 << 20

// ErrBufferOverflow is returned by Append when the bound would be exceeded.
var ErrBufferOverflow = errors.New("audio: output buffer overflow")

// Frame is one decoded, playback-ready unit produced by Flush.
type Frame struct {
	Samples   []int16
	Fragments int
	// OddByte is set when the concatenated payload had a trailing half sample.
	OddByte bool
}

// Buffer 有界、仅追加的输出音频片段缓冲。
// 不是并发安全的：由拥有它的会话事件循环独占使用。
type Buffer struct {
	fragments []string
	size      int
	max       int
}

// NewBuffer 创建缓冲，maxBytes <= 0 时使用 DefaultMaxBufferBytes
func NewBuffer(maxBytes int) *Buffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBufferBytes
	}
	return &Buffer{max: maxBytes}
}

// Append 按到达顺序追加一个 base64 片段。空片段被忽略。
func (b *Buffer) Append(fragment string) error {
	if fragment == "" {
		return nil
	}
	if b.size+len(fragment) > b.max {
		return fmt.Errorf("%w: %d + %d > %d bytes", ErrBufferOverflow, b.size, len(fragment), b.max)
	}
	b.fragments = append(b.fragments, fragment)
	b.size += len(fragment)
	return nil
}

// Pending reports whether any fragment awaits a flush.
func (b *Buffer) Pending() bool { return len(b.fragments) > 0 }

// Len returns the number of pending fragments.
func (b *Buffer) Len() int { return len(b.fragments) }

// Size returns the pending encoded size in bytes.
func (b *Buffer) Size() int { return b.size }

// Flush 拼接全部片段后整体解码，并清空缓冲。解码失败时缓冲同样被清空。
func (b *Buffer) Flush() (Frame, error) {
	n := len(b.fragments)
	joined := make([]byte, 0, b.size)
	for _, f := range b.fragments {
		joined = append(joined, f...)
	}
	b.Reset()

	raw, err := DecodeConcatenated(string(joined))
	if err != nil {
		return Frame{Fragments: n}, fmt.Errorf("audio: decode %d fragments: %w", n, err)
	}
	return Frame{
		Samples:   BytesToPCM16(raw),
		Fragments: n,
		OddByte:   len(raw)%2 == 1,
	}, nil
}

// Reset discards pending fragments.
func (b *Buffer) Reset() {
	b.fragments = nil
	b.size = 0
}
