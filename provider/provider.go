package provider

import (
	"context"
	"slices"
)

// Capability 声明 provider 支持的操作类型
type Capability string

const (
	CapabilityRealtime Capability = "realtime"
	CapabilityTTS      Capability = "tts"
	CapabilitySTT      Capability = "stt"
)

// Descriptor 是 provider 的连接元数据，启动后只读
type Descriptor struct {
	ID           string       `json:"id"`
	Endpoint     string       `json:"endpoint"`
	AuthScheme   string       `json:"auth_scheme"`
	Capabilities []Capability `json:"capabilities"`
	Supported    bool         `json:"supported"`
	Reason       string       `json:"reason,omitempty"`
}

// Has reports whether the descriptor declares c.
func (d Descriptor) Has(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// Adapter 是所有 provider 适配器的公共能力
type Adapter interface {
	ID() string
	Capabilities() []Capability
}

// RealtimeAdapter 建立双向流式语音连接
type RealtimeAdapter interface {
	Adapter
	Connect(ctx context.Context, cfg SessionConfig) (RealtimeConn, error)
}

// Synthesizer 一次性文本转语音
type Synthesizer interface {
	Adapter
	Synthesize(ctx context.Context, req *SynthesisRequest) (*SynthesisResult, error)
}

// Transcriber 一次性语音转文本
type Transcriber interface {
	Adapter
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResult, error)
}

// RealtimeConn 是会话独占的上游流式连接。
// Events 在上游断开后关闭，此时 Err 返回断开原因；由本端 Close 时 Err 为 nil。
type RealtimeConn interface {
	Provider() string
	Events() <-chan Event
	Configure(ctx context.Context, cfg SessionConfig) error
	AppendAudio(ctx context.Context, encoded string) error
	Commit(ctx context.Context) error
	RequestResponse(ctx context.Context) error
	Err() error
	Close() error
}
