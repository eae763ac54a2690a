package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/router"

	"go.uber.org/zap"
)

// =============================================================================
// 🔊 一次性 TTS / STT Handler
// =============================================================================

const (
	// maxSpeechChars 单次合成文本上限（字符数）
	maxSpeechChars = 4096
	// defaultMaxUploadBytes 转写上传默认上限
	defaultMaxUploadBytes = 25 << 20
)

// Route 一类调用的默认 provider 顺序
type Route struct {
	Primary   string
	Fallbacks []string
}

// SpeechConfig 一次性语音端点参数
type SpeechConfig struct {
	TTS Route
	STT Route
	// MaxUploadBytes 转写上传上限，<=0 使用 25MB
	MaxUploadBytes int64
}

// SpeechHandler 经 router 调用 TTS/STT provider
type SpeechHandler struct {
	router   *router.Router
	registry *provider.Registry
	config   SpeechConfig
	logger   *zap.Logger
}

// NewSpeechHandler 创建处理器
func NewSpeechHandler(r *router.Router, registry *provider.Registry, config SpeechConfig, logger *zap.Logger) *SpeechHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &SpeechHandler{
		router:   r,
		registry: registry,
		config:   config,
		logger:   logger.With(zap.String("handler", "speech")),
	}
}

func (h *SpeechHandler) canSynthesize(id string) error {
	_, err := h.registry.Synthesizer(id)
	return err
}

func (h *SpeechHandler) canTranscribe(id string) error {
	_, err := h.registry.Transcriber(id)
	return err
}

// RoutingOptions 每个请求可覆盖的路由参数
type RoutingOptions struct {
	Provider  string   `json:"provider,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty"`
	// Retries 主 provider 重试次数，省略时使用路由默认值
	Retries *int `json:"retries,omitempty"`
	// TimeoutMS 单次尝试超时（毫秒），省略时使用路由默认值
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

func (o RoutingOptions) resolve(def Route) (string, []router.Option) {
	primary := o.Provider
	fallbacks := o.Fallbacks
	if primary == "" {
		primary = def.Primary
		if fallbacks == nil {
			fallbacks = def.Fallbacks
		}
	}
	opts := []router.Option{router.WithFallbacks(fallbacks...)}
	if o.Retries != nil {
		opts = append(opts, router.WithRetries(*o.Retries))
	}
	if o.TimeoutMS > 0 {
		opts = append(opts, router.WithTimeout(time.Duration(o.TimeoutMS)*time.Millisecond))
	}
	return primary, opts
}

// checkProviders 请求显式指定的 provider 必须已注册且具备该能力。
// 未知 id 在路由前拒绝，不会为其创建熔断器。
func (o RoutingOptions) checkProviders(resolve func(id string) error) error {
	ids := append([]string{o.Provider}, o.Fallbacks...)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := resolve(id); err != nil {
			return fmt.Errorf("provider %q cannot serve this request: %w", id, err)
		}
	}
	return nil
}

func (o RoutingOptions) validate() error {
	if o.Retries != nil && *o.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	if o.TimeoutMS < 0 {
		return errors.New("timeout_ms must not be negative")
	}
	return nil
}

// SpeechRequest POST /v1/audio/speech 请求体
type SpeechRequest struct {
	RoutingOptions
	Text           string  `json:"text"`
	Model          string  `json:"model,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Language       string  `json:"language,omitempty"`
}

func (req *SpeechRequest) validate() error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("text is required")
	}
	if utf8.RuneCountInString(req.Text) > maxSpeechChars {
		return errors.New("text exceeds " + strconv.Itoa(maxSpeechChars) + " characters")
	}
	if req.Speed != 0 && (req.Speed < 0.25 || req.Speed > 4) {
		return errors.New("speed must be between 0.25 and 4.0")
	}
	return req.RoutingOptions.validate()
}

// HandleSynthesize 处理 POST /v1/audio/speech，成功时直接返回音频字节
func (h *SpeechHandler) HandleSynthesize(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req SpeechRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	if err := req.checkProviders(h.canSynthesize); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	primary, opts := req.resolve(h.config.TTS)
	opts = append(opts,
		router.WithOperation("speech.synthesize"),
		router.WithEligibility(h.canSynthesize),
	)

	start := time.Now()
	result, err := router.Do(r.Context(), h.router, primary,
		func(ctx context.Context, id string) (*provider.SynthesisResult, error) {
			tts, err := h.registry.Synthesizer(id)
			if err != nil {
				return nil, err
			}
			return tts.Synthesize(ctx, req.forProvider(id, primary))
		}, opts...)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("speech synthesized",
		zap.String("provider", result.Provider),
		zap.Int("chars", utf8.RuneCountInString(req.Text)),
		zap.Int("bytes", len(result.AudioData)),
		zap.Duration("duration", time.Since(start)),
	)

	w.Header().Set("Content-Type", result.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(result.AudioData)))
	w.Header().Set("X-Provider", result.Provider)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.AudioData)
}

// forProvider 模型与音色只对请求指定的主 provider 生效，降级目标使用各自默认值
func (req *SpeechRequest) forProvider(id, primary string) *provider.SynthesisRequest {
	out := &provider.SynthesisRequest{
		Text:           req.Text,
		Speed:          req.Speed,
		ResponseFormat: req.ResponseFormat,
		Language:       req.Language,
	}
	if id == primary {
		out.Model = req.Model
		out.Voice = req.Voice
	}
	return out
}

// HandleTranscribe 处理 POST /v1/audio/transcriptions（multipart/form-data）。
// 表单字段：file（必填）、provider、fallbacks（逗号分隔）、retries、timeout_ms、
// model、language、prompt、response_format。
func (h *SpeechHandler) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorMessage(w, r, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "upload exceeds size limit")
			return
		}
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "file is required")
		return
	}
	audioBytes, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "failed to read upload")
		return
	}
	if len(audioBytes) == 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, "file is empty")
		return
	}

	routing, err := routingFromForm(r)
	if err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if err := routing.checkProviders(h.canTranscribe); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	primary, opts := routing.resolve(h.config.STT)
	opts = append(opts,
		router.WithOperation("speech.transcribe"),
		router.WithEligibility(h.canTranscribe),
	)

	base := provider.TranscriptionRequest{
		Audio:          audioBytes,
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
	}
	model := r.FormValue("model")

	start := time.Now()
	result, err := router.Do(r.Context(), h.router, primary,
		func(ctx context.Context, id string) (*provider.TranscriptionResult, error) {
			stt, err := h.registry.Transcriber(id)
			if err != nil {
				return nil, err
			}
			req := base
			if id == primary {
				req.Model = model
			}
			return stt.Transcribe(ctx, &req)
		}, opts...)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("audio transcribed",
		zap.String("provider", result.Provider),
		zap.Int("bytes", len(audioBytes)),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, r, result)
}

func routingFromForm(r *http.Request) (RoutingOptions, error) {
	o := RoutingOptions{Provider: r.FormValue("provider")}
	if v := r.FormValue("fallbacks"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				o.Fallbacks = append(o.Fallbacks, p)
			}
		}
	}
	if v := r.FormValue("retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, errors.New("retries must be an integer")
		}
		o.Retries = &n
	}
	if v := r.FormValue("timeout_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, errors.New("timeout_ms must be an integer")
		}
		o.TimeoutMS = n
	}
	return o, o.validate()
}
