package main

import (
	"context"
	"fmt"
	"strings"
)

var exportMIME = map[string]string{
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// Exporter lays a whitepaper out with the format's profile and renders it.
type Exporter struct {
	profiles Profiles
	fonts    pdfFonts
}

func NewExporter(profiles Profiles, fonts pdfFonts) *Exporter {
	if profiles == nil {
		profiles = defaultProfiles()
	}
	return &Exporter{profiles: profiles, fonts: fonts}
}

func (e *Exporter) profile(format string) (Profile, error) {
	p, ok := e.profiles[strings.ToLower(format)]
	if !ok {
		return Profile{}, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
	return p, nil
}

func (e *Exporter) measurer(p Profile) (Measurer, error) {
	em := p.AvgCharWidth
	if em <= 0 {
		em = 0.5
	}
	switch p.Name {
	case FormatPDF:
		return newPDFMeasurer(p, e.fonts)
	case FormatPPTX:
		return classMeasurer{em: em}, nil
	default:
		return averageMeasurer{em: em}, nil
	}
}

// Layout paginates paper for format without rendering it.
func (e *Exporter) Layout(paper *Whitepaper, format string) (*Document, error) {
	p, err := e.profile(format)
	if err != nil {
		return nil, err
	}
	m, err := e.measurer(p)
	if err != nil {
		return nil, err
	}
	return Compose(paper.composeInput(), p, m)
}

// Render returns the export bytes and their MIME type.
func (e *Exporter) Render(ctx context.Context, paper *Whitepaper, format string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	format = strings.ToLower(format)
	doc, err := e.Layout(paper, format)
	if err != nil {
		return nil, "", err
	}
	assets := paper.assets()
	hasCover := paper.IncludeCover

	var data []byte
	switch format {
	case FormatPDF:
		data, err = renderPDF(doc, assets, pdfMeta{Title: paper.Title, Author: paper.Author, HasCover: hasCover}, e.fonts)
	case FormatDOCX:
		data, err = renderDOCX(doc, assets, officeMeta{Title: paper.Title, Author: paper.Author, Created: paper.CreatedAt, HasCover: hasCover})
	case FormatPPTX:
		data, err = renderPPTX(doc, assets, officeMeta{Title: paper.Title, Author: paper.Author, Created: paper.CreatedAt, HasCover: hasCover})
	default:
		return nil, "", fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", format, err)
	}
	return data, exportMIME[format], nil
}

// Outline lists the level 1 and 2 headings with the PDF pages they land on.
func (e *Exporter) Outline(paper *Whitepaper) []OutlineEntry {
	doc, err := e.Layout(paper, FormatPDF)
	if err != nil {
		return outline(paper.Blocks)
	}
	out := make([]OutlineEntry, 0, len(doc.Headings))
	for _, h := range doc.Headings {
		if h.Level <= 2 {
			out = append(out, h)
		}
	}
	return out
}
