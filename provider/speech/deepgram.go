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

// Deepgram 实现 provider.Transcriber
type Deepgram struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgram 创建 Deepgram 适配器
func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	def := DefaultDeepgramConfig()
	cfg.ID = orDefault(cfg.ID, def.ID)
	cfg.BaseURL = orDefault(cfg.BaseURL, def.BaseURL)
	cfg.Model = orDefault(cfg.Model, def.Model)

	return &Deepgram{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout, def.Timeout),
	}
}

func (p *Deepgram) ID() string { return p.cfg.ID }

func (p *Deepgram) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilitySTT}
}

type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language,omitempty"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Confidence float64 `json:"confidence"`
			Transcript string  `json:"transcript"`
			Speaker    int     `json:"speaker"`
		} `json:"utterances,omitempty"`
	} `json:"results"`
}

// Transcribe 调用 POST /v1/listen，音频作为原始请求体上传
func (p *Deepgram) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResult, error) {
	if p.cfg.APIKey == "" {
		return nil, missingKey(p.cfg.ID)
	}
	if len(req.Audio) == 0 {
		return nil, types.NewError(types.KindUnknown, "audio input is required").WithProvider(p.cfg.ID).WithRetryable(false)
	}

	model := orDefault(req.Model, p.cfg.Model)
	params := url.Values{}
	params.Set("model", model)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	if req.Language != "" {
		params.Set("language", req.Language)
	}
	if req.Diarization {
		params.Set("diarize", "true")
		params.Set("utterances", "true")
	}

	endpoint := fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(p.cfg.BaseURL, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", orDefault(req.ContentType, "audio/wav"))

	body, err := do(ctx, p.client, p.cfg.ID, httpReq)
	if err != nil {
		return nil, err
	}
	var dResp deepgramResponse
	if err := json.Unmarshal(body, &dResp); err != nil {
		return nil, parseError(p.cfg.ID, err)
	}

	result := &provider.TranscriptionResult{
		Provider:  p.cfg.ID,
		Model:     model,
		Language:  req.Language,
		Duration:  seconds(dResp.Metadata.Duration),
		CreatedAt: time.Now(),
	}
	if len(dResp.Results.Channels) > 0 {
		ch := dResp.Results.Channels[0]
		if ch.DetectedLanguage != "" {
			result.Language = ch.DetectedLanguage
		}
		if len(ch.Alternatives) > 0 {
			result.Text = ch.Alternatives[0].Transcript
			result.Confidence = ch.Alternatives[0].Confidence
		}
	}
	for i, u := range dResp.Results.Utterances {
		result.Segments = append(result.Segments, provider.Segment{
			ID:         i,
			Start:      seconds(u.Start),
			End:        seconds(u.End),
			Text:       u.Transcript,
			Speaker:    fmt.Sprintf("speaker_%d", u.Speaker),
			Confidence: u.Confidence,
		})
	}
	return result, nil
}
