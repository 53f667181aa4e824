package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once from the environment at startup.
type Config struct {
	Port    string
	LogMode string

	LLMProvider string
	LLMModel    string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	OpenRouterURL    string
	EmbeddingModel   string
	ImageModel       string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	QueueWorkers int
	QueueSize    int

	LayoutProfilesFile string
	PDFFont            string
	PDFFontBold        string
}

// loadConfig loads envFile (or ./.env when present) and then reads the
// environment. A missing default .env is not an error.
func loadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:    envOr("PORT", "3000"),
		LogMode: envOr("LOG_MODE", "dev"),

		LLMProvider: strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		LLMModel:    os.Getenv("LLM_MODEL"),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:     firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterURL:    envOr("OPENROUTER_URL", OpenRouterAPIURL),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		ImageModel:       envOr("IMAGE_MODEL", "dall-e-3"),

		QdrantURL:        strings.TrimRight(os.Getenv("QDRANT_URL"), "/"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "pages"),

		DatabaseDSN:   envOr("DATABASE_DSN", "whitepapers.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LayoutProfilesFile: os.Getenv("LAYOUT_PROFILES_FILE"),
		PDFFont:            os.Getenv("PDF_FONT_FILE"),
		PDFFontBold:        os.Getenv("PDF_FONT_BOLD_FILE"),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.QueueWorkers, err = envInt("QUEUE_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.QueueWorkers < 1 {
		cfg.QueueWorkers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	ttl := envOr("CACHE_TTL", "24h")
	if cfg.CacheTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL %q: %w", ttl, err)
	}

	switch cfg.LLMProvider {
	case "openai", "gemini", "anthropic", "openrouter":
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (supported: openai, gemini, anthropic, openrouter)", cfg.LLMProvider)
	}

	for key, path := range map[string]string{"PDF_FONT_FILE": cfg.PDFFont, "PDF_FONT_BOLD_FILE": cfg.PDFFontBold} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
