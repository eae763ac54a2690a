package session

// 客户端与代理之间的消息类型
const (
	TypeAudioInput  = "audio_input"
	TypeCommitAudio = "commit_audio"

	TypeConnected        = "connected"
	TypeSpeechStarted    = "speech_started"
	TypeSpeechStopped    = "speech_stopped"
	TypeTranscriptInput  = "transcript_input"
	TypeAudioOutput      = "audio_output"
	TypeResponseComplete = "response_complete"
	TypeError            = "error"
)

// ClientMessage 客户端发来的消息。Data 为 PCM16 采样。
type ClientMessage struct {
	Type string  `json:"type"`
	Data []int16 `json:"data,omitempty"`
}

// ServerMessage 代理发往客户端的消息
type ServerMessage struct {
	Type       string  `json:"type"`
	Transcript string  `json:"transcript,omitempty"`
	Data       []int16 `json:"data,omitempty"`
	Message    string  `json:"message,omitempty"`
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: msg}
}
