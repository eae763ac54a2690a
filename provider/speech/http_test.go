package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAITTS_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body openAITTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1-hd", body.Model)
		assert.Equal(t, "nova", body.Voice)
		assert.Equal(t, "hello", body.Input)
		assert.Equal(t, "wav", body.ResponseFormat)
		assert.Equal(t, 1.5, body.Speed)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	p := NewOpenAITTS(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL})
	assert.Equal(t, "openai", p.ID())
	assert.Equal(t, []provider.Capability{provider.CapabilityTTS}, p.Capabilities())

	res, err := p.Synthesize(context.Background(), &provider.SynthesisRequest{
		Text: "hello", Voice: "nova", ResponseFormat: "wav", Speed: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, []byte("RIFFdata"), res.AudioData)
	assert.Equal(t, "wav", res.Format)
	assert.Equal(t, "audio/wav", res.ContentType())
	assert.Equal(t, 5, res.CharCount)
}

func TestHTTPAdapters_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.ErrorKind
		retry  bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, types.KindAuthentication, false},
		{"forbidden", http.StatusForbidden, "", types.KindAuthorization, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", types.KindRateLimit, true},
		{"server error", http.StatusInternalServerError, "boom", types.KindServerError, true},
		{"gateway timeout", http.StatusGatewayTimeout, "", types.KindTimeout, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ctx := context.Background()
			calls := []func() error{
				func() error {
					_, err := NewOpenAITTS(OpenAITTSConfig{APIKey: "k", BaseURL: srv.URL}).
						Synthesize(ctx, &provider.SynthesisRequest{Text: "hi"})
					return err
				},
				func() error {
					_, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}).
						Synthesize(ctx, &provider.SynthesisRequest{Text: "hi"})
					return err
				},
				func() error {
					_, err := NewOpenAISTT(OpenAISTTConfig{APIKey: "k", BaseURL: srv.URL}).
						Transcribe(ctx, &provider.TranscriptionRequest{Audio: []byte{1, 2}})
					return err
				},
				func() error {
					_, err := NewDeepgram(DeepgramConfig{APIKey: "k", BaseURL: srv.URL}).
						Transcribe(ctx, &provider.TranscriptionRequest{Audio: []byte{1, 2}})
					return err
				},
			}
			for _, call := range calls {
				err := call()
				require.Error(t, err)
				e, ok := types.AsError(err)
				require.True(t, ok)
				assert.Equal(t, tt.want, e.Kind)
				assert.Equal(t, tt.retry, e.Retryable)
				assert.Equal(t, tt.status, e.HTTPStatus)
			}
		})
	}
}

func TestHTTPAdapters_MissingKey(t *testing.T) {
	ctx := context.Background()
	_, err := NewOpenAITTS(OpenAITTSConfig{}).Synthesize(ctx, &provider.SynthesisRequest{Text: "hi"})
	assert.Equal(t, types.KindAuthentication, types.KindOf(err))
	_, err = NewElevenLabs(ElevenLabsConfig{}).Synthesize(ctx, &provider.SynthesisRequest{Text: "hi"})
	assert.Equal(t, types.KindAuthentication, types.KindOf(err))
	_, err = NewOpenAISTT(OpenAISTTConfig{}).Transcribe(ctx, &provider.TranscriptionRequest{Audio: []byte{1}})
	assert.Equal(t, types.KindAuthentication, types.KindOf(err))
	_, err = NewDeepgram(DeepgramConfig{}).Transcribe(ctx, &provider.TranscriptionRequest{Audio: []byte{1}})
	assert.Equal(t, types.KindAuthentication, types.KindOf(err))
}

func TestHTTPAdapters_EmptyInputNotRetryable(t *testing.T) {
	ctx := context.Background()
	_, err := NewOpenAITTS(OpenAITTSConfig{APIKey: "k"}).Synthesize(ctx, &provider.SynthesisRequest{Text: "  "})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))

	_, err = NewDeepgram(DeepgramConfig{APIKey: "k"}).Transcribe(ctx, &provider.TranscriptionRequest{})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestHTTPAdapters_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOpenAITTS(OpenAITTSConfig{APIKey: "k", BaseURL: url}).
		Synthesize(context.Background(), &provider.SynthesisRequest{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.KindNetwork, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestHTTPAdapters_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOpenAITTS(OpenAITTSConfig{APIKey: "k", BaseURL: srv.URL}).
		Synthesize(ctx, &provider.SynthesisRequest{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.KindTimeout, types.KindOf(err))
}

func TestOpenAISTT_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.wav", hdr.Filename)
		assert.Equal(t, []byte{1, 2, 3}, data)

		_, _ = w.Write([]byte(`{"text":"hello world","language":"en","duration":1.5,
			"segments":[{"id":0,"start":0,"end":0.75,"text":"hello"},{"id":1,"start":0.75,"end":1.5,"text":"world"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAISTT(OpenAISTTConfig{APIKey: "k", BaseURL: srv.URL})
	req := &provider.TranscriptionRequest{Audio: []byte{1, 2, 3}, Filename: "clip.wav", Language: "en"}
	res, err := p.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, 1500*time.Millisecond, res.Duration)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 750*time.Millisecond, res.Segments[0].End)
	assert.Equal(t, "world", res.Segments[1].Text)

	// 同一请求可再次发送
	res, err = p.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
}

func TestOpenAISTT_PlainTextFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("just text\n"))
	}))
	defer srv.Close()

	res, err := NewOpenAISTT(OpenAISTTConfig{APIKey: "k", BaseURL: srv.URL}).Transcribe(context.Background(),
		&provider.TranscriptionRequest{Audio: []byte{1}, ResponseFormat: "text"})
	require.NoError(t, err)
	assert.Equal(t, "just text", res.Text)
}

func TestOpenAISTT_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewOpenAISTT(OpenAISTTConfig{APIKey: "k", BaseURL: srv.URL}).Transcribe(context.Background(),
		&provider.TranscriptionRequest{Audio: []byte{1}})
	require.Error(t, err)
	assert.Equal(t, types.KindParseError, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestElevenLabs_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "pcm_16000", r.URL.Query().Get("output_format"))
		assert.Equal(t, "xi", r.Header.Get("xi-api-key"))

		var body elevenLabsTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)
		assert.Equal(t, "bonjour", body.Text)
		_, _ = w.Write([]byte{0x01, 0x02})
	}))
	defer srv.Close()

	res, err := NewElevenLabs(ElevenLabsConfig{APIKey: "xi", BaseURL: srv.URL}).Synthesize(context.Background(),
		&provider.SynthesisRequest{Text: "bonjour", Voice: "voice-1", ResponseFormat: "pcm_16000"})
	require.NoError(t, err)
	assert.Equal(t, "elevenlabs", res.Provider)
	assert.Equal(t, []byte{0x01, 0x02}, res.AudioData)
	assert.Equal(t, "pcm_16000", res.Format)
}

func TestDeepgram_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		assert.Equal(t, "true", r.URL.Query().Get("diarize"))
		assert.Equal(t, "Token dg", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{9, 9}, data)

		_, _ = w.Write([]byte(`{"metadata":{"duration":2.0},
			"results":{"channels":[{"alternatives":[{"transcript":"hi there","confidence":0.9}]}],
			"utterances":[{"start":0,"end":2,"confidence":0.9,"transcript":"hi there","speaker":1}]}}`))
	}))
	defer srv.Close()

	res, err := NewDeepgram(DeepgramConfig{APIKey: "dg", BaseURL: srv.URL}).Transcribe(context.Background(),
		&provider.TranscriptionRequest{Audio: []byte{9, 9}, ContentType: "audio/mpeg", Diarization: true})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, 2*time.Second, res.Duration)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "speaker_1", res.Segments[0].Speaker)
}
