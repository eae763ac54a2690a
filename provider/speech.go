package provider

import "time"

// ============================================================
// 文字转语音 (TTS)
// ============================================================

// SynthesisRequest 文本转语音请求
type SynthesisRequest struct {
	Text           string            `json:"text"`
	Model          string            `json:"model,omitempty"`
	Voice          string            `json:"voice,omitempty"`
	Speed          float64           `json:"speed,omitempty"`           // 0.25-4.0
	ResponseFormat string            `json:"response_format,omitempty"` // mp3, opus, aac, flac, wav, pcm
	Language       string            `json:"language,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SynthesisResult TTS 调用结果，音频在调用内完整读取
type SynthesisResult struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	AudioData []byte    `json:"-"`
	Format    string    `json:"format"`
	CharCount int       `json:"char_count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentType returns the MIME type for the result's format.
func (r *SynthesisResult) ContentType() string {
	switch r.Format {
	case "mp3", "mp3_44100_128", "":
		return "audio/mpeg"
	case "opus", "ogg_vorbis":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}

// ============================================================
// 语音转文本 (STT)
// ============================================================

// TranscriptionRequest 语音转文本请求。
// Audio 为完整字节，重试与故障转移时可被重复读取。
type TranscriptionRequest struct {
	Audio          []byte            `json:"-"`
	Filename       string            `json:"filename,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	Model          string            `json:"model,omitempty"`
	Language       string            `json:"language,omitempty"` // ISO-639-1
	Prompt         string            `json:"prompt,omitempty"`
	ResponseFormat string            `json:"response_format,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	Diarization    bool              `json:"diarization,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TranscriptionResult STT 调用结果
type TranscriptionResult struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Language   string        `json:"language,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Segments   []Segment     `json:"segments,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Segment 转写片段
type Segment struct {
	ID         int           `json:"id"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
	Speaker    string        `json:"speaker,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}
