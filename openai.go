package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(apiKey, baseURL, model string) *openAIProvider {
	return &openAIProvider{client: newOpenAIClient(apiKey, baseURL), model: model}
}

func (o *openAIProvider) Name() string { return "openai" }

func (o *openAIProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type openAIEmbedder struct {
	client *openai.Client
	model  string
}

func newOpenAIEmbedder(apiKey, baseURL, model string) *openAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIEmbedder{client: newOpenAIClient(apiKey, baseURL), model: model}
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai embeddings: empty vector")
	}
	return resp.Data[0].Embedding, nil
}

// ImageGenerator produces an encoded image for a text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type openAIImageGenerator struct {
	client *openai.Client
	model  string
	size   string
}

func newOpenAIImageGenerator(apiKey, baseURL, model string) *openAIImageGenerator {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &openAIImageGenerator{
		client: newOpenAIClient(apiKey, baseURL),
		model:  model,
		size:   openai.CreateImageSize1792x1024,
	}
}

func (g *openAIImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}
	req := openai.ImageRequest{
		Prompt: prompt,
		Model:  g.model,
		N:      1,
		Size:   g.size,
	}
	// gpt-image models always answer in base64 and reject the parameter.
	if !strings.HasPrefix(strings.ToLower(g.model), "gpt-image-") {
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}
	resp, err := g.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai image: no image returned")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai image: decode: %w", err)
	}
	return data, nil
}
