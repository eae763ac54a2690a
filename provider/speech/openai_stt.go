package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"
)

// OpenAISTT 使用 OpenAI Whisper API 实现 provider.Transcriber
type OpenAISTT struct {
	cfg    OpenAISTTConfig
	client *http.Client
}

// NewOpenAISTT 创建 Whisper 适配器
func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	def := DefaultOpenAISTTConfig()
	cfg.ID = orDefault(cfg.ID, def.ID)
	cfg.BaseURL = orDefault(cfg.BaseURL, def.BaseURL)
	cfg.Model = orDefault(cfg.Model, def.Model)

	return &OpenAISTT{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout, def.Timeout),
	}
}

func (p *OpenAISTT) ID() string { return p.cfg.ID }

func (p *OpenAISTT) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilitySTT}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segments []struct {
		ID         int     `json:"id"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob,omitempty"`
	} `json:"segments,omitempty"`
}

// Transcribe 将音频转为文本。请求体每次调用重新构建，音频可重复发送。
func (p *OpenAISTT) Transcribe(ctx context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResult, error) {
	if p.cfg.APIKey == "" {
		return nil, missingKey(p.cfg.ID)
	}
	if len(req.Audio) == 0 {
		return nil, types.NewError(types.KindUnknown, "audio input is required").WithProvider(p.cfg.ID).WithRetryable(false)
	}

	model := orDefault(req.Model, p.cfg.Model)
	format := orDefault(req.ResponseFormat, "verbose_json")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", orDefault(req.Filename, "audio.wav"))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}
	_ = writer.WriteField("model", model)
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	if req.Temperature > 0 {
		_ = writer.WriteField("temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64))
	}
	_ = writer.WriteField("response_format", format)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/transcriptions",
		&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := do(ctx, p.client, p.cfg.ID, httpReq)
	if err != nil {
		return nil, err
	}

	result := &provider.TranscriptionResult{
		Provider:  p.cfg.ID,
		Model:     model,
		CreatedAt: time.Now(),
	}
	// text/srt/vtt 格式直接返回正文
	if format != "json" && format != "verbose_json" {
		result.Text = strings.TrimSpace(string(body))
		return result, nil
	}

	var wResp whisperResponse
	if err := json.Unmarshal(body, &wResp); err != nil {
		return nil, parseError(p.cfg.ID, err)
	}
	result.Text = wResp.Text
	result.Language = wResp.Language
	result.Duration = seconds(wResp.Duration)
	for _, s := range wResp.Segments {
		result.Segments = append(result.Segments, provider.Segment{
			ID:    s.ID,
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  s.Text,
		})
	}
	return result, nil
}
