package openai

import "github.com/BaSui01/voicebridge/provider"

// clientEvent 发往上游的简单事件
type clientEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type sessionPayload struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection       `json:"turn_detection,omitempty"`
}

type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

func newSessionUpdate(sc provider.SessionConfig) sessionUpdate {
	p := sessionPayload{
		Modalities:        sc.Modalities,
		Instructions:      sc.Instructions,
		Voice:             sc.Voice,
		InputAudioFormat:  sc.InputAudioFormat,
		OutputAudioFormat: sc.OutputAudioFormat,
	}
	if sc.TranscriptionModel != "" {
		p.InputAudioTranscription = &transcriptionConfig{Model: sc.TranscriptionModel}
	}
	if td := sc.TurnDetection; td != nil {
		p.TurnDetection = &turnDetection{
			Type:              td.Type,
			Threshold:         td.Threshold,
			PrefixPaddingMs:   td.PrefixPaddingMs,
			SilenceDurationMs: td.SilenceDurationMs,
		}
	}
	return sessionUpdate{Type: "session.update", Session: p}
}

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// serverEvent 上游事件中本代理关心的字段
type serverEvent struct {
	Type       string        `json:"type"`
	Delta      string        `json:"delta,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Error      *errorPayload `json:"error,omitempty"`
}

// normalize 将 OpenAI 事件名映射为归一化事件；不关心的事件返回 false
func (e serverEvent) normalize() (provider.Event, bool) {
	ev := provider.Event{Native: e.Type}
	switch e.Type {
	case "session.created":
		ev.Type = provider.EventReady
	case "session.updated":
		ev.Type = provider.EventConfigured
	case "input_audio_buffer.speech_started":
		ev.Type = provider.EventSpeechStarted
	case "input_audio_buffer.speech_stopped":
		ev.Type = provider.EventSpeechStopped
	case "conversation.item.input_audio_transcription.completed":
		ev.Type = provider.EventTranscriptInput
		ev.Transcript = e.Transcript
	case "response.audio.delta", "response.output_audio.delta":
		ev.Type = provider.EventAudioDelta
		ev.Audio = e.Delta
	case "response.audio.done", "response.output_audio.done":
		ev.Type = provider.EventAudioDone
	case "response.done":
		ev.Type = provider.EventResponseDone
	case "error":
		ev.Type = provider.EventError
		ev.Message = "provider error"
		if e.Error != nil {
			ev.Code = e.Error.Code
			if e.Error.Message != "" {
				ev.Message = e.Error.Message
			}
		}
	default:
		return provider.Event{}, false
	}
	return ev, true
}
