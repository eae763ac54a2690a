package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly 使用 Amazon Polly 实现 provider.Synthesizer。
// 客户端在首次调用时按默认凭证链惰性创建。
type Polly struct {
	cfg PollyConfig

	mu     sync.Mutex
	client pollyClient
}

// NewPolly 创建 Polly 适配器
func NewPolly(cfg PollyConfig) *Polly {
	return newPollyWithClient(cfg, nil)
}

func newPollyWithClient(cfg PollyConfig, client pollyClient) *Polly {
	def := DefaultPollyConfig()
	cfg.ID = orDefault(cfg.ID, def.ID)
	cfg.Region = orDefault(cfg.Region, def.Region)
	cfg.VoiceID = orDefault(cfg.VoiceID, def.VoiceID)
	cfg.Engine = orDefault(cfg.Engine, def.Engine)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Polly{cfg: cfg, client: client}
}

func (p *Polly) ID() string { return p.cfg.ID }

func (p *Polly) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityTTS}
}

func (p *Polly) resolveClient(ctx context.Context) (pollyClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, types.NewError(types.KindAuthentication, "load aws config").WithProvider(p.cfg.ID).WithCause(err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

func pollyOutputFormat(format string) (pollytypes.OutputFormat, string) {
	switch strings.ToLower(format) {
	case "pcm":
		return pollytypes.OutputFormatPcm, "pcm"
	case "ogg", "ogg_vorbis", "opus":
		return pollytypes.OutputFormatOggVorbis, "ogg_vorbis"
	default:
		return pollytypes.OutputFormatMp3, "mp3"
	}
}

// Synthesize converts text to speech.
func (p *Polly) Synthesize(ctx context.Context, req *provider.SynthesisRequest) (*provider.SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.KindUnknown, "text is required").WithProvider(p.cfg.ID).WithRetryable(false)
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	outputFormat, format := pollyOutputFormat(req.ResponseFormat)
	text := req.Text

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	input := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: outputFormat,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(orDefault(req.Voice, p.cfg.VoiceID)),
	}
	if req.Language != "" {
		input.LanguageCode = pollytypes.LanguageCode(req.Language)
	}

	output, err := client.SynthesizeSpeech(cctx, input)
	if err != nil {
		return nil, normalizePollyError(p.cfg.ID, err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, types.NewError(types.KindServerError, "provider returned empty audio").WithProvider(p.cfg.ID)
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(io.LimitReader(output.AudioStream, maxResponseBytes))
	if err != nil {
		return nil, transportError(cctx, p.cfg.ID, fmt.Errorf("read audio stream: %w", err))
	}
	return &provider.SynthesisResult{
		Provider:  p.cfg.ID,
		Model:     string(engine),
		AudioData: audio,
		Format:    format,
		CharCount: len([]rune(req.Text)),
		CreatedAt: time.Now(),
	}, nil
}

// normalizePollyError 将 smithy API 错误码映射为错误分类
func normalizePollyError(id string, err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.KindTimeout, "polly request timed out").WithProvider(id).WithCause(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		var kind types.ErrorKind
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			kind = types.KindRateLimit
		case "UnrecognizedClientException", "InvalidSignatureException", "ExpiredTokenException", "MissingAuthenticationTokenException":
			kind = types.KindAuthentication
		case "AccessDeniedException":
			kind = types.KindAuthorization
		case "LexiconNotFoundException", "EngineNotSupportedException":
			kind = types.KindNotFound
		case "InvalidSsmlException", "TextLengthExceededException", "MarksNotSupportedForFormatException",
			"InvalidSampleRateException", "LanguageNotSupportedException", "ValidationException":
			return types.NewError(types.KindUnknown, apiErr.ErrorMessage()).WithProvider(id).WithCause(err).WithRetryable(false)
		default:
			kind = types.KindServerError
		}
		return types.NewError(kind, apiErr.ErrorMessage()).WithProvider(id).WithCause(err)
	}

	return transportError(context.Background(), id, err)
}
