package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHAT_HTTP_TIMEOUT", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLE_RATIO", "")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Client.HTTPTimeout)
	assert.Equal(t, "support-chat", cfg.Realtime.ChannelPrefix)
	assert.Equal(t, "ollama", cfg.Ai.LLMProvider)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHAT_HTTP_TIMEOUT", "5s")
	t.Setenv("CHAT_HISTORY_LIMIT", "50")
	t.Setenv("DB_DEBUG", "true")
	t.Setenv("GO_ENV", "production")
	t.Setenv("CHAT_SEND_RATE", "0.5")
	t.Setenv("OTEL_SERVICE_NAME", "support-chat-eu")

	cfg := Load()

	assert.Equal(t, "support-chat-eu", cfg.Tracing.ServiceName)
	assert.Equal(t, 0.5, cfg.App.SendRatePerSecond)
	assert.Equal(t, 5*time.Second, cfg.Client.HTTPTimeout)
	assert.Equal(t, 50, cfg.App.HistoryLimit)
	assert.True(t, cfg.Database.Debug)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("CHAT_HTTP_TIMEOUT", "soon")
	t.Setenv("AI_CONTEXT_WINDOW", "many")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Client.HTTPTimeout)
	assert.Equal(t, 20, cfg.Ai.ContextWindow)
}
