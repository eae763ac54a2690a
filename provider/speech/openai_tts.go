package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"
)

// OpenAITTS 使用 OpenAI /v1/audio/speech 实现 provider.Synthesizer
type OpenAITTS struct {
	cfg    OpenAITTSConfig
	client *http.Client
}

// NewOpenAITTS 创建 OpenAI TTS 适配器
func NewOpenAITTS(cfg OpenAITTSConfig) *OpenAITTS {
	def := DefaultOpenAITTSConfig()
	cfg.ID = orDefault(cfg.ID, def.ID)
	cfg.BaseURL = orDefault(cfg.BaseURL, def.BaseURL)
	cfg.Model = orDefault(cfg.Model, def.Model)
	cfg.Voice = orDefault(cfg.Voice, def.Voice)

	return &OpenAITTS{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout, def.Timeout),
	}
}

func (p *OpenAITTS) ID() string { return p.cfg.ID }

func (p *OpenAITTS) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityTTS}
}

type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to speech.
func (p *OpenAITTS) Synthesize(ctx context.Context, req *provider.SynthesisRequest) (*provider.SynthesisResult, error) {
	if p.cfg.APIKey == "" {
		return nil, missingKey(p.cfg.ID)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.KindUnknown, "text is required").WithProvider(p.cfg.ID).WithRetryable(false)
	}

	model := orDefault(req.Model, p.cfg.Model)
	format := orDefault(req.ResponseFormat, "mp3")
	body := openAITTSRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          orDefault(req.Voice, p.cfg.Voice),
		ResponseFormat: format,
	}
	if req.Speed > 0 {
		body.Speed = req.Speed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/speech",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	audio, err := do(ctx, p.client, p.cfg.ID, httpReq)
	if err != nil {
		return nil, err
	}
	return &provider.SynthesisResult{
		Provider:  p.cfg.ID,
		Model:     model,
		AudioData: audio,
		Format:    format,
		CharCount: len([]rune(req.Text)),
		CreatedAt: time.Now(),
	}, nil
}
