// =============================================================================
// 📦 voicebridge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/provider/router"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Breaker:   circuitbreaker.DefaultConfig(),
		Router:    router.DefaultConfig(),
		Session:   DefaultSessionConfig(),
		Speech:    DefaultSpeechConfig(),
		Providers: DefaultProvidersConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		MaxBodyBytes:    25 << 20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "voicebridge",
		SampleRate:     0.1,
		Insecure:       true,
		ExportInterval: 15 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "voicebridge:usage:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "voicebridge",
		Name:            "voicebridge",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Provider:             "openai",
		MaxSessions:          100,
		ConnectTimeout:       10 * time.Second,
		ConnectRetries:       2,
		WriteTimeout:         10 * time.Second,
		MaxBufferBytes:       4 << 20,
		AudioFramesPerSecond: 50,
		AudioFrameBurst:      100,
		ReadLimit:            1 << 20,
		Model:                "gpt-4o-realtime-preview",
		Voice:                "alloy",
		Instructions:         "You are a helpful voice assistant.",
	}
}

// DefaultSpeechConfig 返回默认一次性调用配置
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		TTSProvider: "openai",
		STTProvider: "openai",
	}
}

// DefaultProvidersConfig 返回默认 provider 配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		OpenAI: OpenAIConfig{
			Enabled:       true,
			BaseURL:       "https://api.openai.com",
			RealtimeURL:   "wss://api.openai.com/v1/realtime",
			RealtimeModel: "gpt-4o-realtime-preview",
			TTSModel:      "tts-1-hd",
			STTModel:      "whisper-1",
			Voice:         "alloy",
			Timeout:       60 * time.Second,
		},
		ElevenLabs: ElevenLabsConfig{
			BaseURL: "https://api.elevenlabs.io",
			Model:   "eleven_multilingual_v2",
			Timeout: 60 * time.Second,
		},
		Deepgram: DeepgramConfig{
			BaseURL: "https://api.deepgram.com",
			Model:   "nova-2",
			Timeout: 120 * time.Second,
		},
		Polly: PollyConfig{
			Region:  "us-east-1",
			VoiceID: "Joanna",
			Engine:  "neural",
			Timeout: 15 * time.Second,
		},
		Unsupported: []string{"azure", "google"},
	}
}
