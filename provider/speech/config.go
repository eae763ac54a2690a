package speech

import "time"

// OpenAITTSConfig 配置 OpenAI TTS 适配器
type OpenAITTSConfig struct {
	ID      string        `json:"id" yaml:"id"`
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // tts-1, tts-1-hd
	Voice   string        `json:"voice,omitempty" yaml:"voice,omitempty"` // alloy, echo, fable, onyx, nova, shimmer
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAISTTConfig 配置 OpenAI Whisper STT 适配器
type OpenAISTTConfig struct {
	ID      string        `json:"id" yaml:"id"`
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // whisper-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ElevenLabsConfig 配置 ElevenLabs TTS 适配器
type ElevenLabsConfig struct {
	ID      string        `json:"id" yaml:"id"`
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // eleven_multilingual_v2
	VoiceID string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DeepgramConfig 配置 Deepgram STT 适配器
type DeepgramConfig struct {
	ID      string        `json:"id" yaml:"id"`
	APIKey  string        `json:"-" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // nova-2
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// PollyConfig 配置 Amazon Polly TTS 适配器，凭证走 AWS 默认凭证链
type PollyConfig struct {
	ID      string        `json:"id" yaml:"id"`
	Region  string        `json:"region" yaml:"region"`
	VoiceID string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	Engine  string        `json:"engine,omitempty" yaml:"engine,omitempty"` // standard, neural
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAITTSConfig 返回默认 OpenAI TTS 配置
func DefaultOpenAITTSConfig() OpenAITTSConfig {
	return OpenAITTSConfig{
		ID:      "openai",
		BaseURL: "https://api.openai.com",
		Model:   "tts-1-hd",
		Voice:   "alloy",
		Timeout: 60 * time.Second,
	}
}

// DefaultOpenAISTTConfig 返回默认 OpenAI STT 配置
func DefaultOpenAISTTConfig() OpenAISTTConfig {
	return OpenAISTTConfig{
		ID:      "openai",
		BaseURL: "https://api.openai.com",
		Model:   "whisper-1",
		Timeout: 120 * time.Second,
	}
}

// DefaultElevenLabsConfig 返回默认 ElevenLabs 配置
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		ID:      "elevenlabs",
		BaseURL: "https://api.elevenlabs.io",
		Model:   "eleven_multilingual_v2",
		VoiceID: "21m00Tcm4TlvDq8ikWAM",
		Timeout: 60 * time.Second,
	}
}

// DefaultDeepgramConfig 返回默认 Deepgram 配置
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		ID:      "deepgram",
		BaseURL: "https://api.deepgram.com",
		Model:   "nova-2",
		Timeout: 120 * time.Second,
	}
}

// DefaultPollyConfig 返回默认 Polly 配置
func DefaultPollyConfig() PollyConfig {
	return PollyConfig{
		ID:      "polly",
		Region:  "us-east-1",
		VoiceID: "Joanna",
		Engine:  "neural",
		Timeout: 15 * time.Second,
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
