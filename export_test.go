package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

func zipParts(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	parts := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		parts[f.Name] = b
	}
	return parts
}

func TestExporterUnsupportedFormat(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	_, _, err := e.Render(context.Background(), testPaper(t), "odt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.Layout(testPaper(t), "html")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExporterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewExporter(nil, pdfFonts{}).Render(ctx, testPaper(t), FormatPDF)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderPDFWithFontFiles(t *testing.T) {
	dir := t.TempDir()
	regular := filepath.Join(dir, "Go-Regular.ttf")
	bold := filepath.Join(dir, "Go-Bold.ttf")
	require.NoError(t, os.WriteFile(regular, goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(bold, gobold.TTF, 0o644))
	require.True(t, filepath.IsAbs(regular))

	data, _, err := NewExporter(nil, pdfFonts{Regular: regular, Bold: bold}).Render(context.Background(), testPaper(t), FormatPDF)
	require.NoError(t, err)
	texts, err := pdfPageTexts(data)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(texts, "\n"), "Zero Trust Networking")

	_, _, err = NewExporter(nil, pdfFonts{Regular: filepath.Join(dir, "missing.ttf")}).Render(context.Background(), testPaper(t), FormatPDF)
	assert.ErrorContains(t, err, "read PDF font")
}

func TestRenderPDFMatchesLayout(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	paper := testPaper(t)
	paper.IncludeTOC = true

	doc, err := e.Layout(paper, FormatPDF)
	require.NoError(t, err)

	data, mime, err := e.Render(context.Background(), paper, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	pages, err := pdfPageTexts(data)
	require.NoError(t, err)
	require.Len(t, pages, len(doc.Pages))

	for _, h := range doc.Headings {
		assert.Contains(t, pages[h.Page-1], h.Text, "heading %q expected on page %d", h.Text, h.Page)
	}
	last := len(pages)
	assert.Contains(t, pages[last-1], fmt.Sprintf("Page %d of %d", last, last))
}

func TestRenderDOCXFollowsEnginePages(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	paper := testPaper(t)
	paper.IncludeCover = true
	cover, err := renderCoverImage(paper.Title, "", "")
	require.NoError(t, err)
	paper.Cover = &cover

	doc, err := e.Layout(paper, FormatDOCX)
	require.NoError(t, err)
	data, mime, err := e.Render(context.Background(), paper, FormatDOCX)
	require.NoError(t, err)
	assert.Contains(t, mime, "wordprocessingml")

	parts := zipParts(t, data)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "docProps/core.xml",
		"word/document.xml", "word/styles.xml", "word/footer1.xml", "word/_rels/document.xml.rels"} {
		assert.Contains(t, parts, name)
	}
	assert.Contains(t, parts, "word/media/image1.png")
	assert.Contains(t, parts, "word/media/image2.png")

	document := string(parts["word/document.xml"])
	assert.Equal(t, len(doc.Pages)-1, strings.Count(document, "<w:pageBreakBefore/>"))
	assert.Contains(t, document, `<w:pStyle w:val="Heading2"/>`)
	assert.Contains(t, document, `<w:titlePg/>`)
	assert.Contains(t, string(parts["docProps/core.xml"]), "<dc:title>Zero Trust Networking</dc:title>")
}

func TestRenderPPTXOneSlidePerPage(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	paper := testPaper(t)

	doc, err := e.Layout(paper, FormatPPTX)
	require.NoError(t, err)
	data, _, err := e.Render(context.Background(), paper, FormatPPTX)
	require.NoError(t, err)

	parts := zipParts(t, data)
	slides := 0
	for name := range parts {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			slides++
		}
	}
	assert.Equal(t, len(doc.Pages), slides)
	assert.Contains(t, parts, "ppt/media/image1.png")
	assert.Contains(t, string(parts["ppt/presentation.xml"]), fmt.Sprintf(`cx="%d"`, ptToEMU(pptxProfile().PageWidth)))

	last := string(parts[fmt.Sprintf("ppt/slides/slide%d.xml", slides)])
	assert.Contains(t, last, fmt.Sprintf("%d / %d", slides, slides))
	assert.Contains(t, string(parts["[Content_Types].xml"]), fmt.Sprintf("/ppt/slides/slide%d.xml", slides))
}

func TestRenderFormatsAgreeOnHeadingOrder(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	paper := testPaper(t)
	var want []string
	for _, h := range outline(paper.Blocks) {
		want = append(want, h.Text)
	}
	for _, format := range exportFormats {
		doc, err := e.Layout(paper, format)
		require.NoError(t, err)
		var got []string
		for _, h := range doc.Headings {
			got = append(got, h.Text)
		}
		assert.Equal(t, want, got, format)
	}
}

func TestOutlineCarriesPDFPages(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	paper := testPaper(t)
	out := e.Outline(paper)
	require.Len(t, out, 4)
	assert.Equal(t, 1, out[0].Page)
	// The conclusion follows an explicit page break.
	assert.Greater(t, out[3].Page, out[2].Page)
}

func TestDOCXRoundTripThroughExtractor(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	data, _, err := e.Render(context.Background(), testPaper(t), FormatDOCX)
	require.NoError(t, err)

	markup, err := extractDOCXMarkup(data)
	require.NoError(t, err)
	assert.Contains(t, markup, "# Zero Trust Networking")
	assert.Contains(t, markup, "## Executive Summary")
	assert.Contains(t, markup, "### Policy Engine")
	assert.Contains(t, markup, "• Verify explicitly")
	assert.Contains(t, markup, "1. Identity provider")
	assert.Contains(t, markup, "[PAGEBREAK]")

	blocks := parseMarkup(markup)
	var headings []string
	for _, b := range blocks {
		if b.Kind == BlockHeading {
			headings = append(headings, b.Text)
		}
	}
	assert.Equal(t, []string{"Zero Trust Networking", "Executive Summary", "Architecture", "Policy Engine", "Conclusion"}, headings)
}

func TestPDFRoundTripThroughExtractor(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	data, _, err := e.Render(context.Background(), testPaper(t), FormatPDF)
	require.NoError(t, err)

	markup, err := extractPDFMarkup(data)
	require.NoError(t, err)
	assert.Contains(t, markup, "Executive Summary")
	assert.Contains(t, markup, "[PAGEBREAK]")
	assert.NotContains(t, markup, "Page 1 of")
}

func TestPreviewPNG(t *testing.T) {
	e := NewExporter(nil, pdfFonts{})
	data, _, err := e.Render(context.Background(), testPaper(t), FormatPDF)
	require.NoError(t, err)

	png, err := renderPreviewPNG(data, 1, 10)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = renderPreviewPNG(data, 99, defaultPreviewDPI)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = renderPreviewPNG([]byte("not a pdf"), 1, defaultPreviewDPI)
	assert.Error(t, err)
}
