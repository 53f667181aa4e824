package main

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

const (
	minPreviewDPI     = 72
	maxPreviewDPI     = 200
	defaultPreviewDPI = 110
)

// renderPreviewPNG rasterises one 1-based page of a PDF with MuPDF.
func renderPreviewPNG(pdf []byte, page int, dpi float64) ([]byte, error) {
	if dpi < minPreviewDPI {
		dpi = minPreviewDPI
	}
	if dpi > maxPreviewDPI {
		dpi = maxPreviewDPI
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("cannot open PDF with MuPDF: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d of %d: %w", page, doc.NumPage(), ErrNotFound)
	}
	png, err := doc.ImagePNG(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return png, nil
}

// pdfPageTexts extracts the text of every page, blank pages included.
func pdfPageTexts(pdf []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("cannot open PDF with MuPDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", n+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
