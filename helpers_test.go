package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPNGBase64(t *testing.T, w, h int) string {
	return base64.StdEncoding.EncodeToString(testPNG(t, w, h))
}

const sampleMarkup = `# Zero Trust Networking

Perimeter security assumes that everything inside the network can be trusted.

## Executive Summary

Zero trust replaces implicit trust with continuous verification of every request.

- Verify explicitly
- Use least privilege access
- Assume breach

## Architecture

1. Identity provider
2. Policy engine
3. Enforcement points

### Policy Engine

The policy engine evaluates signals such as device health and location.

[PAGEBREAK]

## Conclusion

Adopting zero trust is a journey rather than a single project.`

func testPaper(t *testing.T) *Whitepaper {
	t.Helper()
	blocks := parseMarkup(sampleMarkup)
	asset, err := normalizeImage(testPNG(t, 320, 200))
	require.NoError(t, err)
	asset.Key = "img1"
	asset.Page = 2
	asset.Caption = "Figure 1: Reference architecture"
	return &Whitepaper{
		ID:        "3f1c2b9e-0000-4000-8000-000000000001",
		Title:     "Zero Trust Networking",
		Topic:     "zero trust",
		Author:    "Platform Team",
		Body:      sampleMarkup,
		Blocks:    blocks,
		Images:    []ImageAsset{asset},
		CreatedAt: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

// fakeProvider replays canned replies and records prompts.
type fakeProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []Prompt
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.prompts)
	f.prompts = append(f.prompts, p)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n < len(f.errs) && f.errs[n] != nil {
		return "", f.errs[n]
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	if n >= len(f.replies) {
		return f.replies[len(f.replies)-1], nil
	}
	return f.replies[n], nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeKnowledgeBase struct {
	passages []Passage
	err      error
	queries  []Query
}

func (f *fakeKnowledgeBase) Search(_ context.Context, q Query) ([]Passage, error) {
	f.queries = append(f.queries, q)
	return f.passages, f.err
}
