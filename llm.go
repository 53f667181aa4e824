package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Prompt is a single-turn request to a text model.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

var defaultModels = map[string]string{
	"openai":     "gpt-4o-mini",
	"gemini":     "gemini-2.5-flash",
	"anthropic":  "claude-sonnet-4-5",
	"openrouter": OpenRouterModel,
}

// newProvider builds the configured provider wrapped in a circuit breaker.
func newProvider(ctx context.Context, cfg *Config, log *Logger) (Provider, error) {
	model := cfg.LLMModel
	if model == "" {
		model = defaultModels[cfg.LLMProvider]
	}

	var (
		p   Provider
		err error
	)
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		p = newOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
		p, err = newGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		p = newAnthropicProvider(cfg.AnthropicAPIKey, model)
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
		}
		p = newOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterURL, model, log)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	log.Info("llm provider ready", "provider", p.Name(), "model", model)
	return newBreakerProvider(p, 3, 10*time.Second), nil
}

// cleanModelOutput removes markdown code fences models like to wrap replies in.
func cleanModelOutput(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breakerProvider stops calling a failing provider for a cool-down period.
// After threshold consecutive failures the circuit opens; once cooldown has
// passed one trial call is let through, and its outcome closes or re-opens it.
type breakerProvider struct {
	next      Provider
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       circuitState
	failures    int
	lastFailure time.Time
	trial       bool
}

func newBreakerProvider(next Provider, threshold int, cooldown time.Duration) *breakerProvider {
	return &breakerProvider{next: next, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *breakerProvider) Name() string { return b.next.Name() }

func (b *breakerProvider) State() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breakerProvider) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitOpen:
		if b.now().Sub(b.lastFailure) > b.cooldown {
			b.state = circuitHalfOpen
			b.trial = true
			return true
		}
		return false
	case circuitHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

func (b *breakerProvider) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
	if err == nil {
		b.state = circuitClosed
		b.failures = 0
		return
	}
	b.failures++
	b.lastFailure = b.now()
	if b.state == circuitHalfOpen || b.failures >= b.threshold {
		b.state = circuitOpen
		b.failures = 0
	}
}

func (b *breakerProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	if !b.allow() {
		return "", fmt.Errorf("%s: %w", b.next.Name(), ErrCircuitOpen)
	}
	out, err := b.next.Complete(ctx, p)
	// A cancelled caller says nothing about the provider's health.
	if ctx.Err() != nil && err != nil {
		b.mu.Lock()
		b.trial = false
		b.mu.Unlock()
		return "", err
	}
	b.record(err)
	return out, err
}
