package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/provider/retry"
	"github.com/BaSui01/voicebridge/provider/router"
	"github.com/BaSui01/voicebridge/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

// fakeSpeech 同时实现 Synthesizer 与 Transcriber
type fakeSpeech struct {
	id  string
	err error

	mu      sync.Mutex
	calls   int
	lastTTS *provider.SynthesisRequest
	lastSTT *provider.TranscriptionRequest
}

func (f *fakeSpeech) ID() string { return f.id }

func (f *fakeSpeech) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityTTS, provider.CapabilitySTT}
}

func (f *fakeSpeech) Synthesize(_ context.Context, req *provider.SynthesisRequest) (*provider.SynthesisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTTS = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.SynthesisResult{
		Provider:  f.id,
		AudioData: []byte("audio-" + f.id),
		Format:    "mp3",
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeSpeech) Transcribe(_ context.Context, req *provider.TranscriptionRequest) (*provider.TranscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSTT = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.TranscriptionResult{Provider: f.id, Text: "hello from " + f.id}, nil
}

func (f *fakeSpeech) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newSpeechFixture(t *testing.T, adapters ...*fakeSpeech) (*router.Router, *provider.Registry) {
	t.Helper()
	reg := provider.NewRegistry(zap.NewNop())
	for _, a := range adapters {
		require.NoError(t, reg.Register(a, provider.Descriptor{Endpoint: "https://" + a.id + ".test"}))
	}
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{Threshold: 5, Cooldown: time.Minute}, zap.NewNop())
	r := router.New(router.Config{
		Retries: 1,
		Timeout: time.Second,
		Backoff: retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, breakers, nil, zap.NewNop())
	return r, reg
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", bytes.NewReader(b))
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

// =============================================================================
// 🧪 TTS
// =============================================================================

func TestHandleSynthesize_Primary(t *testing.T) {
	primary := &fakeSpeech{id: "openai"}
	r, reg := newSpeechFixture(t, primary)
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "openai"}}, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi", "voice": "nova", "model": "tts-1"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "openai", w.Header().Get("X-Provider"))
	assert.Equal(t, "audio-openai", w.Body.String())
	assert.Equal(t, "nova", primary.lastTTS.Voice)
	assert.Equal(t, "tts-1", primary.lastTTS.Model)
}

func TestHandleSynthesize_FailsOverWithoutOverrides(t *testing.T) {
	primary := &fakeSpeech{id: "openai", err: types.NewError(types.KindServerError, "upstream 500")}
	backup := &fakeSpeech{id: "elevenlabs"}
	r, reg := newSpeechFixture(t, primary, backup)
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "openai", Fallbacks: []string{"elevenlabs"}}}, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi", "voice": "nova"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "elevenlabs", w.Header().Get("X-Provider"))
	// Retries=1 时主 provider 共尝试两次
	assert.Equal(t, 2, primary.callCount())
	assert.Empty(t, backup.lastTTS.Voice)
}

func TestHandleSynthesize_RequestRoutingOverride(t *testing.T) {
	a := &fakeSpeech{id: "a", err: types.NewError(types.KindServerError, "down")}
	b := &fakeSpeech{id: "b"}
	r, reg := newSpeechFixture(t, a, b)
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "b"}}, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, map[string]any{
		"text": "hi", "provider": "a", "fallbacks": []string{"b"}, "retries": 0,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", w.Header().Get("X-Provider"))
	assert.Equal(t, 1, a.callCount())
}

func TestHandleSynthesize_AllFailed(t *testing.T) {
	a := &fakeSpeech{id: "a", err: types.NewError(types.KindAuthentication, "bad key")}
	b := &fakeSpeech{id: "b", err: types.NewError(types.KindRateLimit, "429")}
	r, reg := newSpeechFixture(t, a, b)
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "a", Fallbacks: []string{"b"}}}, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAllFailed, resp.Error.Code)
	assert.Equal(t, "b", resp.Error.Provider)
	// 鉴权失败不重试：a 一次，b 一次
	assert.Len(t, resp.Error.Attempts, 2)
	assert.Equal(t, 1, a.callCount())
}

func TestHandleSynthesize_Validation(t *testing.T) {
	r, reg := newSpeechFixture(t, &fakeSpeech{id: "openai"})
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "openai"}}, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing text", body: map[string]any{"voice": "x"}},
		{name: "blank text", body: map[string]any{"text": "   "}},
		{name: "too long", body: map[string]any{"text": strings.Repeat("字", maxSpeechChars+1)}},
		{name: "speed low", body: map[string]any{"text": "hi", "speed": 0.1}},
		{name: "speed high", body: map[string]any{"text": "hi", "speed": 5}},
		{name: "negative retries", body: map[string]any{"text": "hi", "retries": -1}},
		{name: "negative timeout", body: map[string]any{"text": "hi", "timeout_ms": -5}},
		{name: "unknown field", body: map[string]any{"text": "hi", "pitch": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.HandleSynthesize, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, CodeInvalidRequest, decodeResponse(t, w).Error.Code)
		})
	}
}

func TestHandleSynthesize_MethodNotAllowed(t *testing.T) {
	r, reg := newSpeechFixture(t)
	h := NewSpeechHandler(r, reg, SpeechConfig{}, nil)
	w := httptest.NewRecorder()
	h.HandleSynthesize(w, httptest.NewRequest(http.MethodGet, "/v1/audio/speech", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// =============================================================================
// 🧪 STT
// =============================================================================

func multipartRequest(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if audio != nil {
		fw, err := mw.CreateFormFile("file", "clip.wav")
		require.NoError(t, err)
		_, err = fw.Write(audio)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestHandleTranscribe_Success(t *testing.T) {
	stt := &fakeSpeech{id: "deepgram"}
	r, reg := newSpeechFixture(t, stt)
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "deepgram"}}, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleTranscribe(w, multipartRequest(t, map[string]string{"language": "en", "model": "nova-2"}, []byte("RIFF....")))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool                         `json:"success"`
		Data    provider.TranscriptionResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello from deepgram", resp.Data.Text)
	assert.Equal(t, "clip.wav", stt.lastSTT.Filename)
	assert.Equal(t, "en", stt.lastSTT.Language)
	assert.Equal(t, "nova-2", stt.lastSTT.Model)
	assert.Equal(t, []byte("RIFF...."), stt.lastSTT.Audio)
}

func TestHandleTranscribe_FormFallbacks(t *testing.T) {
	a := &fakeSpeech{id: "a", err: types.NewError(types.KindNetwork, "reset")}
	b := &fakeSpeech{id: "b"}
	r, reg := newSpeechFixture(t, a, b)
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "a"}}, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleTranscribe(w, multipartRequest(t, map[string]string{
		"fallbacks": " b , ", "retries": "0", "model": "only-for-a",
	}, []byte("pcm")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, a.callCount())
	assert.Empty(t, b.lastSTT.Model)
}

func TestHandleTranscribe_BadRequests(t *testing.T) {
	r, reg := newSpeechFixture(t, &fakeSpeech{id: "a"})
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "a"}}, zap.NewNop())

	tests := []struct {
		name   string
		fields map[string]string
		audio  []byte
	}{
		{name: "missing file", fields: map[string]string{"language": "en"}},
		{name: "empty file", audio: []byte{}},
		{name: "bad retries", fields: map[string]string{"retries": "many"}, audio: []byte("x")},
		{name: "negative timeout", fields: map[string]string{"timeout_ms": "-1"}, audio: []byte("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleTranscribe(w, multipartRequest(t, tt.fields, tt.audio))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleTranscribe_UploadTooLarge(t *testing.T) {
	r, reg := newSpeechFixture(t, &fakeSpeech{id: "a"})
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "a"}, MaxUploadBytes: 1024}, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleTranscribe(w, multipartRequest(t, nil, bytes.Repeat([]byte("a"), 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// =============================================================================
// 🧪 provider 解析失败不影响熔断器
// =============================================================================

// sttOnly 只声明 STT 能力
type sttOnly struct{ *fakeSpeech }

func (s sttOnly) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilitySTT}
}

func TestHandleSynthesize_WrongCapabilityKeepsBreakerClosed(t *testing.T) {
	deepgram := &fakeSpeech{id: "deepgram"}
	r, reg := newSpeechFixture(t)
	require.NoError(t, reg.Register(sttOnly{deepgram}, provider.Descriptor{Endpoint: "https://deepgram.test"}))
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "deepgram"}}, zap.NewNop())

	// 阈值为 5：误路由次数达到阈值也不能打开熔断器
	for i := 0; i < 5; i++ {
		w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi", "provider": "deepgram"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decodeResponse(t, w).Error.Code)
	}
	_, created := r.Breakers().Lookup("deepgram")
	assert.False(t, created)
	assert.Equal(t, 0, deepgram.callCount())

	w := httptest.NewRecorder()
	h.HandleTranscribe(w, multipartRequest(t, nil, []byte("pcm")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, deepgram.callCount())
}

func TestHandleSynthesize_UnknownIDsCreateNoBreakers(t *testing.T) {
	r, reg := newSpeechFixture(t, &fakeSpeech{id: "openai"})
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "openai"}}, zap.NewNop())

	for i := 0; i < 50; i++ {
		junk := fmt.Sprintf("junk-%d", i)
		w := postJSON(t, h.HandleSynthesize, map[string]any{
			"text": "hi", "fallbacks": []string{junk},
		})
		require.Equal(t, http.StatusBadRequest, w.Code, junk)
	}
	w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi", "provider": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, r.Breakers().Snapshots())
}

func TestHandleTranscribe_UnknownFallbackRejected(t *testing.T) {
	r, reg := newSpeechFixture(t, &fakeSpeech{id: "a"})
	h := NewSpeechHandler(r, reg, SpeechConfig{STT: Route{Primary: "a"}}, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleTranscribe(w, multipartRequest(t, map[string]string{"fallbacks": "a,ghost"}, []byte("pcm")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, created := r.Breakers().Lookup("ghost")
	assert.False(t, created)
}

func TestHandleSynthesize_ConfiguredRouteSkipsIneligible(t *testing.T) {
	deepgram := &fakeSpeech{id: "deepgram"}
	openai := &fakeSpeech{id: "openai"}
	r, reg := newSpeechFixture(t, openai)
	require.NoError(t, reg.Register(sttOnly{deepgram}, provider.Descriptor{Endpoint: "https://deepgram.test"}))
	// 配置错误：TTS 主 provider 指向只支持 STT 的适配器
	h := NewSpeechHandler(r, reg, SpeechConfig{TTS: Route{Primary: "deepgram", Fallbacks: []string{"openai"}}}, zap.NewNop())

	w := postJSON(t, h.HandleSynthesize, map[string]any{"text": "hi"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "openai", w.Header().Get("X-Provider"))
	assert.Equal(t, 0, deepgram.callCount())
	_, created := r.Breakers().Lookup("deepgram")
	assert.False(t, created)
}
