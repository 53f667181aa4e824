package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ImageAsset is a resolved image, normalised to PNG.
type ImageAsset struct {
	Key     string `json:"key"`
	Page    int    `json:"page"`
	Caption string `json:"caption,omitempty"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	PNG     []byte `json:"-"`
}

// Source is a knowledge-base passage the whitepaper was grounded on.
type Source struct {
	Index   int     `json:"index"`
	DocName string  `json:"doc_name,omitempty"`
	PageNum int     `json:"page_num,omitempty"`
	Score   float32 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

type Whitepaper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Topic    string `json:"topic"`
	Author   string `json:"author,omitempty"`
	Body     string `json:"body"`

	Blocks  []Block      `json:"-"`
	Images  []ImageAsset `json:"images,omitempty"`
	Cover   *ImageAsset  `json:"-"`
	Sources []Source     `json:"sources,omitempty"`

	IncludeCover bool      `json:"include_cover"`
	IncludeTOC   bool      `json:"include_toc"`
	CreatedAt    time.Time `json:"created_at"`
}

func (w *Whitepaper) composeInput() ComposeInput {
	in := ComposeInput{
		Title:        w.Title,
		Subtitle:     w.Subtitle,
		Author:       w.Author,
		Blocks:       w.Blocks,
		IncludeCover: w.IncludeCover,
		IncludeTOC:   w.IncludeTOC,
	}
	if !w.CreatedAt.IsZero() {
		in.Date = w.CreatedAt.Format("January 2, 2006")
	}
	if w.IncludeCover && w.Cover != nil {
		in.Cover = &ImageSlot{Key: w.Cover.Key, Width: w.Cover.Width, Height: w.Cover.Height}
	}
	for _, img := range w.Images {
		in.Images = append(in.Images, ImageSlot{
			Key:     img.Key,
			Page:    img.Page,
			Width:   img.Width,
			Height:  img.Height,
			Caption: img.Caption,
		})
	}
	return in
}

// assets indexes every image of the whitepaper by key.
func (w *Whitepaper) assets() map[string]ImageAsset {
	out := make(map[string]ImageAsset, len(w.Images)+1)
	for _, img := range w.Images {
		out[img.Key] = img
	}
	if w.Cover != nil {
		out[w.Cover.Key] = *w.Cover
	}
	return out
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// exportFileName builds a download name such as "zero-trust-networking.pdf".
func exportFileName(title, format string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "whitepaper"
	}
	return fmt.Sprintf("%s.%s", slug, format)
}
