package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"
const OpenRouterModel = "google/gemini-2.5-flash"

// OpenRouter API structures
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenRouterMessage `json:"messages"`
	Temperature float32             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type OpenRouterChoice struct {
	Message      OpenRouterMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
	Index        int               `json:"index"`
}

type OpenRouterResponse struct {
	ID      string             `json:"id"`
	Choices []OpenRouterChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

type openRouterProvider struct {
	apiKey string
	url    string
	model  string
	http   *http.Client
	log    *Logger
}

func newOpenRouterProvider(apiKey, url, model string, log *Logger) *openRouterProvider {
	if url == "" {
		url = OpenRouterAPIURL
	}
	if log == nil {
		log = nopLogger()
	}
	return &openRouterProvider{
		apiKey: apiKey,
		url:    url,
		model:  model,
		http:   &http.Client{Timeout: 5 * time.Minute},
		log:    log,
	}
}

func (o *openRouterProvider) Name() string { return "openrouter" }

func (o *openRouterProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	reqBody := OpenRouterRequest{
		Model:       o.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if p.System != "" {
		reqBody.Messages = append(reqBody.Messages, OpenRouterMessage{Role: "system", Content: p.System})
	}
	reqBody.Messages = append(reqBody.Messages, OpenRouterMessage{Role: "user", Content: p.User})
	return o.call(ctx, reqBody)
}

func (o *openRouterProvider) call(ctx context.Context, reqBody OpenRouterRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/catalinfl/whitepaper-studio")
	req.Header.Set("X-Title", "Whitepaper Studio")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call OpenRouter API: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenRouter API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var openRouterResp OpenRouterResponse
	if err := json.Unmarshal(bodyBytes, &openRouterResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if openRouterResp.Error != nil {
		return "", fmt.Errorf("OpenRouter API error: %s", openRouterResp.Error.Message)
	}

	if len(openRouterResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices received")
	}

	answer := strings.TrimSpace(openRouterResp.Choices[0].Message.Content)
	o.log.Debug("openrouter call completed", "model", o.model, "usage", openRouterResp.Usage.TotalTokens)

	return answer, nil
}
