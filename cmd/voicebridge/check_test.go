package main

import (
	"bytes"
	"testing"

	"github.com/BaSui01/voicebridge/config"
	"github.com/BaSui01/voicebridge/provider/factory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDescribeRoutes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Polly.Enabled = true
	cfg.Session.Fallbacks = []string{"azure"}
	cfg.Speech.TTSFallbacks = []string{"elevenlabs"}
	cfg.Speech.STTFallbacks = []string{"polly", "google"}

	registry, err := factory.NewRegistry(cfg.Providers, zap.NewNop())
	require.NoError(t, err)

	got := map[string]string{}
	for _, h := range describeRoutes(cfg, registry) {
		got[h.Route+"/"+h.Position+"/"+h.Provider] = h.Status
	}
	assert.Equal(t, map[string]string{
		"realtime/primary/openai": "ok",
		"realtime/fallback/azure": "unsupported",
		"tts/primary/openai":      "ok",
		"tts/fallback/elevenlabs": "not registered",
		"stt/primary/openai":      "ok",
		"stt/fallback/polly":      "missing capability",
		"stt/fallback/google":     "unsupported",
	}, got)
}

func TestPrintRoutes(t *testing.T) {
	var buf bytes.Buffer
	printRoutes(&buf, []routeHop{{Route: "tts", Position: "primary", Provider: "openai", Status: "ok"}})

	out := buf.String()
	assert.Contains(t, out, "ROUTE")
	assert.Contains(t, out, "openai")
}
