// Package factory builds the provider Registry from configuration. It imports
// every adapter sub-package so that provider stays free of concrete adapters.
package factory

import (
	"fmt"
	"strings"

	"github.com/BaSui01/voicebridge/config"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/openai"
	"github.com/BaSui01/voicebridge/provider/speech"

	"go.uber.org/zap"
)

// 内置 provider id
const (
	OpenAI     = "openai"
	ElevenLabs = "elevenlabs"
	Deepgram   = "deepgram"
	Polly      = "polly"
)

// unsupportedCaps 已知但尚未实现的 provider 的能力声明
var unsupportedCaps = map[string][]provider.Capability{
	"azure":  {provider.CapabilityRealtime, provider.CapabilityTTS, provider.CapabilitySTT},
	"google": {provider.CapabilityTTS, provider.CapabilitySTT},
}

// NewRegistry 按配置注册所有启用的 provider。
// 凭证缺失不会阻止注册，调用时由适配器返回 AUTHENTICATION 错误。
func NewRegistry(cfg config.ProvidersConfig, logger *zap.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := provider.NewRegistry(logger)

	if cfg.OpenAI.Enabled {
		if err := registerOpenAI(reg, cfg.OpenAI, logger); err != nil {
			return nil, err
		}
	}

	if cfg.ElevenLabs.Enabled {
		c := cfg.ElevenLabs
		a := speech.NewElevenLabs(speech.ElevenLabsConfig{
			ID:      ElevenLabs,
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			VoiceID: c.VoiceID,
			Timeout: c.Timeout,
		})
		if err := reg.Register(a, provider.Descriptor{
			Endpoint:   orDefault(c.BaseURL, speech.DefaultElevenLabsConfig().BaseURL),
			AuthScheme: "xi-api-key",
		}); err != nil {
			return nil, err
		}
		warnMissingKey(logger, ElevenLabs, c.APIKey)
	}

	if cfg.Deepgram.Enabled {
		c := cfg.Deepgram
		a := speech.NewDeepgram(speech.DeepgramConfig{
			ID:      Deepgram,
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.Timeout,
		})
		if err := reg.Register(a, provider.Descriptor{
			Endpoint:   orDefault(c.BaseURL, speech.DefaultDeepgramConfig().BaseURL),
			AuthScheme: "token",
		}); err != nil {
			return nil, err
		}
		warnMissingKey(logger, Deepgram, c.APIKey)
	}

	if cfg.Polly.Enabled {
		c := cfg.Polly
		a := speech.NewPolly(speech.PollyConfig{
			ID:      Polly,
			Region:  c.Region,
			VoiceID: c.VoiceID,
			Engine:  c.Engine,
			Timeout: c.Timeout,
		})
		region := orDefault(c.Region, speech.DefaultPollyConfig().Region)
		if err := reg.Register(a, provider.Descriptor{
			Endpoint:   fmt.Sprintf("https://polly.%s.amazonaws.com", region),
			AuthScheme: "aws-sigv4",
		}); err != nil {
			return nil, err
		}
	}

	for _, id := range cfg.Unsupported {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		u := provider.Unsupported{
			Provider: id,
			Caps:     unsupportedCaps[id],
			Reason:   fmt.Sprintf("%s adapter is not implemented", id),
		}
		if err := reg.Register(u, provider.Descriptor{}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func registerOpenAI(reg *provider.Registry, c config.OpenAIConfig, logger *zap.Logger) error {
	realtime := openai.NewRealtimeAdapter(openai.RealtimeConfig{
		ID:      OpenAI,
		APIKey:  c.APIKey,
		BaseURL: c.RealtimeURL,
		Model:   c.RealtimeModel,
	}, logger)
	tts := speech.NewOpenAITTS(speech.OpenAITTSConfig{
		ID:      OpenAI,
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.TTSModel,
		Voice:   c.Voice,
		Timeout: c.Timeout,
	})
	stt := speech.NewOpenAISTT(speech.OpenAISTTConfig{
		ID:      OpenAI,
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.STTModel,
		Timeout: c.Timeout,
	})

	suite := provider.NewSuite(OpenAI, realtime, tts, stt)
	if err := reg.Register(suite, provider.Descriptor{
		Endpoint:   orDefault(c.BaseURL, speech.DefaultOpenAITTSConfig().BaseURL),
		AuthScheme: "bearer",
	}); err != nil {
		return err
	}
	warnMissingKey(logger, OpenAI, c.APIKey)
	return nil
}

func warnMissingKey(logger *zap.Logger, id, key string) {
	if key == "" {
		logger.Warn("provider has no api key configured; calls will fail with AUTHENTICATION",
			zap.String("provider", id))
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SupportedProviders returns the ids of the built-in adapters.
func SupportedProviders() []string {
	return []string{OpenAI, ElevenLabs, Deepgram, Polly}
}
