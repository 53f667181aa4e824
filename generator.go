package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request describes the whitepaper a user asked for.
type Request struct {
	Topic    string `json:"topic"`
	Audience string `json:"audience,omitempty"`
	Tone     string `json:"tone,omitempty"`
	Length   string `json:"length,omitempty"` // short | medium | long
	Sections int    `json:"sections,omitempty"`
	Language string `json:"language,omitempty"`

	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Author   string `json:"author,omitempty"`

	UseKnowledgeBase bool   `json:"use_knowledge_base,omitempty"`
	Namespace        string `json:"namespace,omitempty"`
	DocName          string `json:"doc_name,omitempty"`

	Images       []ImageSpec `json:"images,omitempty"`
	IncludeCover bool        `json:"include_cover"`
	IncludeTOC   bool        `json:"include_toc"`
}

var lengthWords = map[string]int{
	"short":  900,
	"medium": 1800,
	"long":   3500,
}

// normalize fills defaults and rejects requests that cannot be generated.
func (r *Request) normalize() error {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	r.Length = strings.ToLower(strings.TrimSpace(r.Length))
	if r.Length == "" {
		r.Length = "medium"
	}
	if _, ok := lengthWords[r.Length]; !ok {
		return fmt.Errorf("%w: length must be short, medium or long", ErrInvalidRequest)
	}
	switch {
	case r.Sections == 0:
		r.Sections = 5
	case r.Sections < 1 || r.Sections > 12:
		return fmt.Errorf("%w: sections must be between 1 and 12", ErrInvalidRequest)
	}
	if r.Language == "" {
		r.Language = "english"
	}
	if r.Audience == "" {
		r.Audience = "technical decision makers"
	}
	if r.Tone == "" {
		r.Tone = "professional"
	}
	if r.UseKnowledgeBase && strings.TrimSpace(r.Namespace) == "" {
		return fmt.Errorf("%w: namespace is required when use_knowledge_base is set", ErrInvalidRequest)
	}
	if len(r.Images) > 20 {
		return fmt.Errorf("%w: at most 20 images", ErrInvalidRequest)
	}
	for i, img := range r.Images {
		if err := img.validate(); err != nil {
			return fmt.Errorf("%w: image %d: %v", ErrInvalidRequest, i+1, err)
		}
	}
	return nil
}

type Generator struct {
	provider Provider
	kb       KnowledgeBase
	images   *imageResolver
	fontPath string
	log      *Logger
	now      func() time.Time
}

func NewGenerator(provider Provider, kb KnowledgeBase, images *imageResolver, fontPath string, log *Logger) *Generator {
	if log == nil {
		log = nopLogger()
	}
	if images == nil {
		images = newImageResolver(nil)
	}
	return &Generator{provider: provider, kb: kb, images: images, fontPath: fontPath, log: log, now: time.Now}
}

// Validate normalizes req and rejects requests this generator cannot serve.
func (g *Generator) Validate(req *Request) error {
	if err := req.normalize(); err != nil {
		return err
	}
	if req.UseKnowledgeBase && g.kb == nil {
		return ErrKnowledgeDisabled
	}
	return nil
}

// Generate produces a complete whitepaper for req.
func (g *Generator) Generate(ctx context.Context, req Request) (*Whitepaper, error) {
	if err := g.Validate(&req); err != nil {
		return nil, err
	}
	log := g.log.With("topic", req.Topic)
	start := g.now()

	var passages []Passage
	if req.UseKnowledgeBase {
		query := g.searchQuery(ctx, req.Topic)
		var err error
		passages, err = g.kb.Search(ctx, Query{
			Namespace: req.Namespace,
			Text:      query,
			DocName:   req.DocName,
			Limit:     6,
		})
		if err != nil {
			return nil, fmt.Errorf("knowledge base search: %w", err)
		}
		log.Info("knowledge base passages", "query", query, "count", len(passages))
	}

	reply, err := g.provider.Complete(ctx, buildWhitepaperPrompt(req, passages))
	if err != nil {
		return nil, fmt.Errorf("generate text: %w", err)
	}
	body := normalizeText(reply)
	blocks := parseMarkup(body)
	if len(blocks) == 0 {
		return nil, ErrEmptyDocument
	}

	images, err := g.images.resolve(ctx, req.Images)
	if err != nil {
		return nil, fmt.Errorf("resolve images: %w", err)
	}

	paper := &Whitepaper{
		ID:           uuid.New().String(),
		Title:        firstNonEmpty(req.Title, documentTitle(blocks), req.Topic),
		Subtitle:     req.Subtitle,
		Topic:        req.Topic,
		Author:       req.Author,
		Body:         body,
		Blocks:       blocks,
		Images:       images,
		Sources:      toSources(passages),
		IncludeCover: req.IncludeCover,
		IncludeTOC:   req.IncludeTOC,
		CreatedAt:    g.now().UTC(),
	}
	if req.IncludeCover {
		cover, err := renderCoverImage(paper.Title, paper.Subtitle, g.fontPath)
		if err != nil {
			log.Warn("cover art failed, continuing without", "error", err)
		} else {
			paper.Cover = &cover
		}
	}

	log.Info("whitepaper generated",
		"id", paper.ID,
		"blocks", len(blocks),
		"images", len(images),
		"took", time.Since(start).String())
	return paper, nil
}

// KeywordExtractionResult is the model's reply to a keyword request.
type KeywordExtractionResult struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

// searchQuery asks the model for search keywords for topic. Any failure
// falls back to the topic itself.
func (g *Generator) searchQuery(ctx context.Context, topic string) string {
	reply, err := g.provider.Complete(ctx, Prompt{
		User: fmt.Sprintf(`Extract the search keywords from the topic below for a vector database lookup.
Drop filler words, keep names and technical terms, and add 2-3 synonyms where useful.

Return ONLY valid JSON, no markdown, no explanation:
{"query": "keywords", "language": "detected language"}

TOPIC:
%s`, topic),
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
			g.log.Warn("keyword extraction failed", "error", err)
		}
		return topic
	}
	var result KeywordExtractionResult
	if err := json.Unmarshal([]byte(cleanModelOutput(reply)), &result); err != nil || strings.TrimSpace(result.Query) == "" {
		return topic
	}
	return result.Query
}

func toSources(passages []Passage) []Source {
	out := make([]Source, 0, len(passages))
	for i, p := range passages {
		out = append(out, Source{
			Index:   i + 1,
			DocName: p.DocName,
			PageNum: p.PageNum,
			Score:   p.Score,
			Excerpt: excerpt(p.Text, 400),
		})
	}
	return out
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}

func buildWhitepaperPrompt(req Request, passages []Passage) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a whitepaper about: %s\n\n", req.Topic)
	fmt.Fprintf(&b, "Audience: %s\nTone: %s\nLanguage: %s\n", req.Audience, req.Tone, req.Language)
	fmt.Fprintf(&b, "Length: about %d words in %d main sections.\n", lengthWords[req.Length], req.Sections)
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}

	b.WriteString(`
FORMAT RULES:
- Start with the title as a level-1 heading: "# Title".
- Use "## " for main sections and "### " for subsections.
- Separate paragraphs with a blank line.
- Use "- " for bullet points and "1. " for numbered steps.
- Do not use tables, code blocks, HTML or images.
- Put [PAGEBREAK] on its own line only where a new page is essential.
- Return ONLY the whitepaper text, no preamble.
`)

	if len(passages) > 0 {
		b.WriteString(`
Ground the whitepaper in the source excerpts below. Cite them inline as [1], [2] ...
where they support a claim, and do not invent facts that contradict them.

SOURCES:
`)
		for i, p := range passages {
			label := p.DocName
			if label == "" {
				label = "document"
			}
			fmt.Fprintf(&b, "[%d] (%s, page %d)\n%s\n\n", i+1, label, p.PageNum, excerpt(p.Text, 1500))
		}
	}

	maxTokens := lengthWords[req.Length] * 2
	if maxTokens < 2000 {
		maxTokens = 2000
	}
	return Prompt{
		System:      fmt.Sprintf("You are an expert technical writer. You write clear, well-structured whitepapers in %s.", req.Language),
		User:        b.String(),
		Temperature: 0.4,
		MaxTokens:   maxTokens,
	}
}
