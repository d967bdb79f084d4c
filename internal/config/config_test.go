package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKERS_PER_STAGE", "")
	t.Setenv("AI_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, 5, cfg.WorkersPerStage)
	assert.Equal(t, 100, cfg.LocalLogCapacity)
	assert.Equal(t, 15*time.Second, cfg.AITimeout)
	assert.True(t, cfg.AbortOnMissingAIKey)
	assert.False(t, cfg.SMTPConfigured())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKERS_PER_STAGE", "12")
	t.Setenv("AI_TIMEOUT", "3s")
	t.Setenv("ABORT_ON_MISSING_AI_KEY", "false")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("AI_PROVIDER", "groq")
	t.Setenv("GROQ_API_KEY", "gsk_test")

	cfg := Load()

	assert.Equal(t, 12, cfg.WorkersPerStage)
	assert.Equal(t, 3*time.Second, cfg.AITimeout)
	assert.False(t, cfg.AbortOnMissingAIKey)
	assert.True(t, cfg.SMTPConfigured())
	assert.Equal(t, "gsk_test", cfg.AIAPIKey())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKERS_PER_STAGE", "many")
	t.Setenv("AI_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 5, cfg.WorkersPerStage)
	assert.Equal(t, 15*time.Second, cfg.AITimeout)
}

func TestAIAPIKeyFollowsProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     string
	}{
		{name: "groq", provider: "groq", want: "gsk_test"},
		{name: "gemini", provider: "gemini", want: "gem_test"},
		{name: "default", provider: "", want: "gem_test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AIProvider: tt.provider, GroqAPIKey: "gsk_test", GeminiAPIKey: "gem_test"}
			assert.Equal(t, tt.want, cfg.AIAPIKey())
		})
	}
}
