package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestNormalize(t *testing.T) {
	req := Request{Topic: "  zero trust  "}
	require.NoError(t, req.normalize())
	assert.Equal(t, "zero trust", req.Topic)
	assert.Equal(t, "medium", req.Length)
	assert.Equal(t, 5, req.Sections)
	assert.Equal(t, "english", req.Language)
	assert.Equal(t, "professional", req.Tone)
	assert.NotEmpty(t, req.Audience)

	cases := []struct {
		name string
		req  Request
	}{
		{"missing topic", Request{Topic: " "}},
		{"bad length", Request{Topic: "x", Length: "epic"}},
		{"too many sections", Request{Topic: "x", Sections: 13}},
		{"negative sections", Request{Topic: "x", Sections: -1}},
		{"kb without namespace", Request{Topic: "x", UseKnowledgeBase: true}},
		{"bad image", Request{Topic: "x", Images: []ImageSpec{{Caption: "no source"}}}},
		{"too many images", Request{Topic: "x", Images: make([]ImageSpec, 21)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.normalize()
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func newTestGenerator(p Provider, kb KnowledgeBase) *Generator {
	g := NewGenerator(p, kb, nil, "", nil)
	g.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerateWithoutKnowledgeBase(t *testing.T) {
	fake := &fakeProvider{replies: []string{sampleMarkup}}
	g := newTestGenerator(fake, nil)

	paper, err := g.Generate(context.Background(), Request{Topic: "zero trust", Length: "short", Author: "Platform Team", IncludeTOC: true})
	require.NoError(t, err)
	assert.Equal(t, "Zero Trust Networking", paper.Title)
	assert.Equal(t, "zero trust", paper.Topic)
	assert.Equal(t, "Platform Team", paper.Author)
	assert.NotEmpty(t, paper.ID)
	assert.True(t, paper.IncludeTOC)
	assert.Nil(t, paper.Cover)
	assert.Empty(t, paper.Sources)
	assert.Equal(t, 2025, paper.CreatedAt.Year())

	require.Equal(t, 1, fake.calls())
	prompt := fake.prompts[0]
	assert.Contains(t, prompt.User, "Write a whitepaper about: zero trust")
	assert.Contains(t, prompt.User, "about 900 words")
	assert.NotContains(t, prompt.User, "SOURCES:")
	assert.Equal(t, 2000, prompt.MaxTokens)
}

func TestGenerateGroundsOnKnowledgeBase(t *testing.T) {
	fake := &fakeProvider{replies: []string{
		"```json\n{\"query\": \"zero trust architecture\", \"language\": \"english\"}\n```",
		sampleMarkup,
	}}
	kb := &fakeKnowledgeBase{passages: []Passage{
		{ID: "1", DocName: "nist-800-207.pdf", PageNum: 4, Text: "Zero trust assumes no implicit trust.", Score: 0.91},
		{ID: "2", PageNum: 9, Text: strings.Repeat("long excerpt ", 100), Score: 0.7},
	}}
	g := newTestGenerator(fake, kb)

	paper, err := g.Generate(context.Background(), Request{
		Topic:            "zero trust",
		UseKnowledgeBase: true,
		Namespace:        "acme",
		DocName:          "nist-800-207.pdf",
		Title:            "Custom Title",
	})
	require.NoError(t, err)
	assert.Equal(t, "Custom Title", paper.Title)

	require.Len(t, kb.queries, 1)
	assert.Equal(t, Query{Namespace: "acme", Text: "zero trust architecture", DocName: "nist-800-207.pdf", Limit: 6}, kb.queries[0])

	require.Len(t, paper.Sources, 2)
	assert.Equal(t, 1, paper.Sources[0].Index)
	assert.Equal(t, "nist-800-207.pdf", paper.Sources[0].DocName)
	assert.True(t, strings.HasSuffix(paper.Sources[1].Excerpt, "…"))

	require.Equal(t, 2, fake.calls())
	assert.Contains(t, fake.prompts[1].User, "SOURCES:")
	assert.Contains(t, fake.prompts[1].User, "[1] (nist-800-207.pdf, page 4)")
	assert.Contains(t, fake.prompts[1].User, "[2] (document, page 9)")
}

func TestGenerateErrors(t *testing.T) {
	_, err := newTestGenerator(&fakeProvider{}, nil).Generate(context.Background(), Request{Topic: "x", UseKnowledgeBase: true, Namespace: "acme"})
	assert.ErrorIs(t, err, ErrKnowledgeDisabled)

	_, err = newTestGenerator(&fakeProvider{replies: []string{"  \n\n  "}}, nil).Generate(context.Background(), Request{Topic: "x"})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = newTestGenerator(&fakeProvider{errs: []error{ErrCircuitOpen}}, nil).Generate(context.Background(), Request{Topic: "x"})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	kb := &fakeKnowledgeBase{err: errors.New("qdrant down")}
	_, err = newTestGenerator(&fakeProvider{replies: []string{"{}", sampleMarkup}}, kb).
		Generate(context.Background(), Request{Topic: "x", UseKnowledgeBase: true, Namespace: "acme"})
	assert.ErrorContains(t, err, "qdrant down")

	_, err = newTestGenerator(&fakeProvider{replies: []string{sampleMarkup}}, nil).
		Generate(context.Background(), Request{Topic: "x", Images: []ImageSpec{{Prompt: "diagram"}}})
	assert.ErrorContains(t, err, "not configured")
}

func TestGenerateCoverAndTitleFallback(t *testing.T) {
	fake := &fakeProvider{replies: []string{"Just a paragraph without any heading."}}
	paper, err := newTestGenerator(fake, nil).Generate(context.Background(), Request{Topic: "edge computing", IncludeCover: true})
	require.NoError(t, err)
	assert.Equal(t, "edge computing", paper.Title)
	require.NotNil(t, paper.Cover)
	assert.Equal(t, "cover", paper.Cover.Key)
}

func TestSearchQueryFallsBackToTopic(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"json", `{"query":"sase edge","language":"english"}`, nil, "sase edge"},
		{"not json", "sase, edge", nil, "secure access"},
		{"empty query", `{"query":"  "}`, nil, "secure access"},
		{"provider error", "", errors.New("boom"), "secure access"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeProvider{replies: []string{tc.reply}, errs: []error{tc.err}}
			got := newTestGenerator(fake, nil).searchQuery(context.Background(), "secure access")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("  a\n b\t c ", 10))
	assert.Equal(t, "abc…", excerpt("abcdef", 3))
}

func TestRenderCoverImage(t *testing.T) {
	a, err := renderCoverImage("Zero Trust", "", "")
	require.NoError(t, err)
	assert.Equal(t, "cover", a.Key)
	assert.Equal(t, coverWidth, a.Width)
	assert.Equal(t, coverHeight, a.Height)

	b, err := renderCoverImage("Zero Trust", "", "")
	require.NoError(t, err)
	assert.Equal(t, a.PNG, b.PNG)

	c, err := renderCoverImage("Another Title", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.PNG, c.PNG)

	// An unreadable font falls back to the bitmap face.
	_, err = renderCoverImage("Zero Trust", "Sub", "/nonexistent/font.ttf")
	assert.NoError(t, err)
}
