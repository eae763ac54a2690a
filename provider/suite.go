package provider

import (
	"context"

	"github.com/BaSui01/voicebridge/types"
)

// Suite 将同一 provider 的多个能力适配器组合为一个注册项，
// 例如 openai 同时提供 realtime、tts 与 stt。
type Suite struct {
	id          string
	realtime    RealtimeAdapter
	synthesizer Synthesizer
	transcriber Transcriber
}

// NewSuite 组合适配器。同一能力出现多次时以后者为准。
func NewSuite(id string, adapters ...Adapter) *Suite {
	s := &Suite{id: id}
	for _, a := range adapters {
		if rt, ok := a.(RealtimeAdapter); ok {
			s.realtime = rt
		}
		if syn, ok := a.(Synthesizer); ok {
			s.synthesizer = syn
		}
		if tr, ok := a.(Transcriber); ok {
			s.transcriber = tr
		}
	}
	return s
}

func (s *Suite) ID() string { return s.id }

func (s *Suite) Capabilities() []Capability {
	var caps []Capability
	if s.realtime != nil {
		caps = append(caps, CapabilityRealtime)
	}
	if s.synthesizer != nil {
		caps = append(caps, CapabilityTTS)
	}
	if s.transcriber != nil {
		caps = append(caps, CapabilitySTT)
	}
	return caps
}

func (s *Suite) missing(c Capability) error {
	return types.NewError(types.KindNotFound, "provider does not support "+string(c)).WithProvider(s.id)
}

func (s *Suite) Connect(ctx context.Context, cfg SessionConfig) (RealtimeConn, error) {
	if s.realtime == nil {
		return nil, s.missing(CapabilityRealtime)
	}
	return s.realtime.Connect(ctx, cfg)
}

func (s *Suite) Synthesize(ctx context.Context, req *SynthesisRequest) (*SynthesisResult, error) {
	if s.synthesizer == nil {
		return nil, s.missing(CapabilityTTS)
	}
	return s.synthesizer.Synthesize(ctx, req)
}

func (s *Suite) Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResult, error) {
	if s.transcriber == nil {
		return nil, s.missing(CapabilitySTT)
	}
	return s.transcriber.Transcribe(ctx, req)
}
