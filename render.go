package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RenderRequest is client-supplied markup rendered without the LLM.
type RenderRequest struct {
	Title        string      `json:"title,omitempty"`
	Subtitle     string      `json:"subtitle,omitempty"`
	Author       string      `json:"author,omitempty"`
	Text         string      `json:"text"`
	Images       []ImageSpec `json:"images,omitempty"`
	IncludeCover bool        `json:"include_cover"`
	IncludeTOC   bool        `json:"include_toc"`
}

// paperFromMarkup builds a whitepaper from markup text. Images must carry
// their data or a URL; prompts need the generator.
func paperFromMarkup(ctx context.Context, resolver *imageResolver, req RenderRequest, fontPath string) (*Whitepaper, error) {
	for i, img := range req.Images {
		if err := img.validate(); err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrInvalidRequest, i+1, err)
		}
		if img.Prompt != "" {
			return nil, fmt.Errorf("%w: image %d: prompts are not supported when rendering markup", ErrInvalidRequest, i+1)
		}
	}

	body := normalizeText(req.Text)
	blocks := parseMarkup(body)
	if len(blocks) == 0 && len(req.Images) == 0 {
		return nil, ErrEmptyDocument
	}

	images, err := resolver.resolve(ctx, req.Images)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	paper := &Whitepaper{
		ID:           uuid.New().String(),
		Title:        firstNonEmpty(req.Title, documentTitle(blocks), "Whitepaper"),
		Subtitle:     strings.TrimSpace(req.Subtitle),
		Author:       strings.TrimSpace(req.Author),
		Body:         body,
		Blocks:       blocks,
		Images:       images,
		IncludeCover: req.IncludeCover,
		IncludeTOC:   req.IncludeTOC,
		CreatedAt:    time.Now().UTC(),
	}
	paper.Topic = paper.Title
	if req.IncludeCover {
		cover, err := renderCoverImage(paper.Title, paper.Subtitle, fontPath)
		if err != nil {
			return nil, fmt.Errorf("cover art: %w", err)
		}
		paper.Cover = &cover
	}
	return paper, nil
}
