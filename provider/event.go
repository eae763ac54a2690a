package provider

// EventType 归一化后的上游实时事件类型
type EventType string

const (
	EventReady           EventType = "ready"
	EventConfigured      EventType = "configured"
	EventSpeechStarted   EventType = "speech_started"
	EventSpeechStopped   EventType = "speech_stopped"
	EventTranscriptInput EventType = "transcript_input"
	EventAudioDelta      EventType = "audio_delta"
	EventAudioDone       EventType = "audio_done"
	EventResponseDone    EventType = "response_done"
	EventError           EventType = "error"
)

// Event 上游事件。Audio 为 base64 编码的 PCM16 片段，仅 audio_delta 携带。
type Event struct {
	Type       EventType `json:"type"`
	Transcript string    `json:"transcript,omitempty"`
	Audio      string    `json:"audio,omitempty"`
	Message    string    `json:"message,omitempty"`
	Code       string    `json:"code,omitempty"`
	// Native is the provider's own event name, kept for logging.
	Native string `json:"native,omitempty"`
}

// TurnDetection 服务端语音活动检测参数
type TurnDetection struct {
	Type              string  `json:"type" yaml:"type"`
	Threshold         float64 `json:"threshold,omitempty" yaml:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms"`
}

// SessionConfig 会话配置，在上游 ready 之后发送
type SessionConfig struct {
	Model              string         `json:"model,omitempty" yaml:"model"`
	Modalities         []string       `json:"modalities" yaml:"modalities"`
	Voice              string         `json:"voice,omitempty" yaml:"voice"`
	Instructions       string         `json:"instructions,omitempty" yaml:"instructions"`
	InputAudioFormat   string         `json:"input_audio_format,omitempty" yaml:"input_audio_format"`
	OutputAudioFormat  string         `json:"output_audio_format,omitempty" yaml:"output_audio_format"`
	TranscriptionModel string         `json:"transcription_model,omitempty" yaml:"transcription_model"`
	TurnDetection      *TurnDetection `json:"turn_detection,omitempty" yaml:"turn_detection"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:              "gpt-4o-realtime-preview",
		Modalities:         []string{"text", "audio"},
		Voice:              "alloy",
		Instructions:       "You are a helpful voice assistant. Keep answers short.",
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		TranscriptionModel: "whisper-1",
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
	}
}
