package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePollyClient struct {
	out   *polly.SynthesizeSpeechOutput
	err   error
	input *polly.SynthesizeSpeechInput
}

func (f *fakePollyClient) SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.input = params
	return f.out, f.err
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e fakeAPIError) Error() string                 { return e.code + ": " + e.msg }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.msg }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestPolly_Synthesize(t *testing.T) {
	client := &fakePollyClient{out: &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(bytes.NewReader([]byte("mp3"))),
	}}
	p := newPollyWithClient(PollyConfig{}, client)
	assert.Equal(t, "polly", p.ID())

	res, err := p.Synthesize(context.Background(), &provider.SynthesisRequest{Text: "hello", ResponseFormat: "pcm"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), res.AudioData)
	assert.Equal(t, "pcm", res.Format)
	assert.Equal(t, "polly", res.Provider)

	require.NotNil(t, client.input)
	assert.Equal(t, pollytypes.EngineNeural, client.input.Engine)
	assert.Equal(t, pollytypes.OutputFormatPcm, client.input.OutputFormat)
	assert.Equal(t, pollytypes.VoiceId("Joanna"), client.input.VoiceId)
	assert.Equal(t, "hello", *client.input.Text)
}

func TestPolly_EmptyAudio(t *testing.T) {
	p := newPollyWithClient(PollyConfig{}, &fakePollyClient{out: &polly.SynthesizeSpeechOutput{}})
	_, err := p.Synthesize(context.Background(), &provider.SynthesisRequest{Text: "hello"})
	require.Error(t, err)
	assert.Equal(t, types.KindServerError, types.KindOf(err))
}

func TestPolly_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  types.ErrorKind
		retry bool
	}{
		{"throttled", fakeAPIError{code: "TooManyRequestsException"}, types.KindRateLimit, true},
		{"bad credentials", fakeAPIError{code: "UnrecognizedClientException"}, types.KindAuthentication, false},
		{"access denied", fakeAPIError{code: "AccessDeniedException"}, types.KindAuthorization, false},
		{"invalid ssml", fakeAPIError{code: "InvalidSsmlException", msg: "bad"}, types.KindUnknown, false},
		{"service failure", fakeAPIError{code: "ServiceFailureException"}, types.KindServerError, true},
		{"deadline", context.DeadlineExceeded, types.KindTimeout, true},
		{"transport", errors.New("connection reset by peer"), types.KindNetwork, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPollyWithClient(PollyConfig{}, &fakePollyClient{err: tt.err})
			_, err := p.Synthesize(context.Background(), &provider.SynthesisRequest{Text: "hello"})
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, tt.retry, e.Retryable)
			assert.Equal(t, "polly", e.Provider)
		})
	}
}
