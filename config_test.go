package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "LOG_MODE", "LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_KEY", "QDRANT_URL",
	"DATABASE_DSN", "REDIS_ADDR", "REDIS_DB", "CACHE_TTL", "QUEUE_WORKERS", "QUEUE_SIZE",
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "PDF_FONT_FILE", "PDF_FONT_BOLD_FILE",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	// godotenv never overrides a variable that is present, even when empty.
	for _, k := range configKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := loadConfig(writeFile(t, ".env", "# empty\n"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "whitepapers.db", cfg.DatabaseDSN)
	assert.Equal(t, "pages", cfg.QdrantCollection)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 2, cfg.QueueWorkers)
	assert.Equal(t, 50, cfg.QueueSize)
	assert.Equal(t, OpenRouterAPIURL, cfg.OpenRouterURL)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	path := writeFile(t, ".env", `LLM_PROVIDER=Gemini
QUEUE_WORKERS=0
QUEUE_SIZE=5
CACHE_TTL=15m
QDRANT_URL=http://qdrant:6333/
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "g-key", cfg.GeminiAPIKey)
	assert.Equal(t, 1, cfg.QueueWorkers)
	assert.Equal(t, 5, cfg.QueueSize)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "http://qdrant:6333", cfg.QdrantURL)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"LLM_PROVIDER":  "cohere",
		"CACHE_TTL":     "one day",
		"QUEUE_WORKERS": "many",
		"REDIS_DB":      "x",
		"PDF_FONT_FILE": "/does/not/exist.ttf",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, val)
			_, err := loadConfig(writeFile(t, ".env", ""))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "godotenv.Load failed")
}

func TestRedactKVs(t *testing.T) {
	got := redactKVs([]interface{}{"api_key", "sk-1", "Authorization", "Bearer x", "model", "gpt", "dangling"})
	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "Authorization", "[REDACTED]", "model", "gpt", "dangling"}, got)
	assert.Empty(t, redactKVs(nil))
}
