package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"
)

// ElevenLabs 实现 provider.Synthesizer
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabs 创建 ElevenLabs 适配器
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	def := DefaultElevenLabsConfig()
	cfg.ID = orDefault(cfg.ID, def.ID)
	cfg.BaseURL = orDefault(cfg.BaseURL, def.BaseURL)
	cfg.Model = orDefault(cfg.Model, def.Model)
	cfg.VoiceID = orDefault(cfg.VoiceID, def.VoiceID)

	return &ElevenLabs{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout, def.Timeout),
	}
}

func (p *ElevenLabs) ID() string { return p.cfg.ID }

func (p *ElevenLabs) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityTTS}
}

type elevenLabsVoiceSettings struct {
	Speed float64 `json:"speed,omitempty"`
}

type elevenLabsTTSRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	LanguageCode  string                   `json:"language_code,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize 调用 POST /v1/text-to-speech/{voice_id}
func (p *ElevenLabs) Synthesize(ctx context.Context, req *provider.SynthesisRequest) (*provider.SynthesisResult, error) {
	if p.cfg.APIKey == "" {
		return nil, missingKey(p.cfg.ID)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.KindUnknown, "text is required").WithProvider(p.cfg.ID).WithRetryable(false)
	}

	model := orDefault(req.Model, p.cfg.Model)
	voiceID := orDefault(req.Voice, p.cfg.VoiceID)
	format := orDefault(req.ResponseFormat, "mp3_44100_128")

	body := elevenLabsTTSRequest{
		Text:         req.Text,
		ModelID:      model,
		LanguageCode: req.Language,
	}
	if req.Speed > 0 {
		body.VoiceSettings = &elevenLabsVoiceSettings{Speed: req.Speed}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(voiceID), url.QueryEscape(format))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
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
