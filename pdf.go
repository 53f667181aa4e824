package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jung-kurt/gofpdf"
)

// pdfFonts selects the PDF typeface. Without TTF files the core Helvetica
// font is used, which only covers cp1252.
type pdfFonts struct {
	Regular string
	Bold    string
}

func (f pdfFonts) utf8() bool { return f.Regular != "" }

func newPDF(p Profile, fonts pdfFonts) (*gofpdf.Fpdf, func(string) string) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: p.PageWidth, Ht: p.PageHeight},
	})
	pdf.SetMargins(p.MarginLeft, p.MarginTop, p.MarginRight)
	pdf.SetAutoPageBreak(false, 0)

	if fonts.utf8() {
		identity := func(s string) string { return s }
		// AddUTF8Font resolves names against the font directory, so the
		// files are read here and absolute paths keep working.
		regular, err := os.ReadFile(fonts.Regular)
		if err != nil {
			pdf.SetError(fmt.Errorf("read PDF font: %w", err))
			return pdf, identity
		}
		bold := regular
		if fonts.Bold != "" {
			if bold, err = os.ReadFile(fonts.Bold); err != nil {
				pdf.SetError(fmt.Errorf("read PDF bold font: %w", err))
				return pdf, identity
			}
		}
		pdf.AddUTF8FontFromBytes("body", "", regular)
		pdf.AddUTF8FontFromBytes("body", "B", bold)
		return pdf, identity
	}
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func pdfFamily(fonts pdfFonts) string {
	if fonts.utf8() {
		return "body"
	}
	return "Helvetica"
}

// pdfMeasurer measures with gofpdf's own font metrics, so PDF layout is exact.
type pdfMeasurer struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	family string
}

func newPDFMeasurer(p Profile, fonts pdfFonts) (*pdfMeasurer, error) {
	pdf, tr := newPDF(p, fonts)
	if err := pdf.Error(); err != nil {
		return nil, err
	}
	return &pdfMeasurer{pdf: pdf, tr: tr, family: pdfFamily(fonts)}, nil
}

func (m *pdfMeasurer) Width(text string, size float64, bold bool) float64 {
	style := ""
	if bold {
		style = "B"
	}
	m.pdf.SetFont(m.family, style, size)
	return m.pdf.GetStringWidth(m.tr(text))
}

type pdfMeta struct {
	Title    string
	Author   string
	HasCover bool
}

// renderPDF draws every item of the laid-out document at its position.
func renderPDF(doc *Document, assets map[string]ImageAsset, meta pdfMeta, fonts pdfFonts) ([]byte, error) {
	p := doc.Profile
	pdf, tr := newPDF(p, fonts)
	family := pdfFamily(fonts)

	pdf.SetTitle(meta.Title, true)
	pdf.SetAuthor(meta.Author, true)
	pdf.SetCreator("whitepaper-studio", true)

	registered := map[string]bool{}
	total := len(doc.Pages)

	for _, page := range doc.Pages {
		pdf.AddPage()
		for _, it := range page.Items {
			switch it.Kind {
			case ItemImage:
				asset, ok := assets[it.ImageKey]
				if !ok || len(asset.PNG) == 0 {
					continue
				}
				opts := gofpdf.ImageOptions{ImageType: "PNG"}
				if !registered[it.ImageKey] {
					pdf.RegisterImageOptionsReader(it.ImageKey, opts, bytes.NewReader(asset.PNG))
					registered[it.ImageKey] = true
				}
				pdf.ImageOptions(it.ImageKey, it.X, it.Y, it.W, it.H, false, opts, 0, "")
			case ItemText:
				drawPDFText(pdf, tr, family, it)
			}
		}

		if meta.HasCover && page.Number == 1 {
			continue
		}
		pdf.SetFont(family, "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.SetXY(p.MarginLeft, p.PageHeight-p.MarginBottom/2-6)
		pdf.CellFormat(p.PageWidth-p.MarginLeft-p.MarginRight, 12,
			tr(fmt.Sprintf("Page %d of %d", page.Number, total)), "", 0, "CM", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func drawPDFText(pdf *gofpdf.Fpdf, tr func(string) string, family string, it Item) {
	style := ""
	if it.Bold {
		style = "B"
	}
	pdf.SetFont(family, style, it.Size)

	switch it.Role {
	case RoleHeading, RoleTitle:
		pdf.SetTextColor(20, 45, 90)
	case RoleCaption, RoleSubtitle:
		pdf.SetTextColor(90, 90, 90)
	default:
		pdf.SetTextColor(0, 0, 0)
	}

	if it.Marker != "" {
		pdf.SetXY(it.MarkerX, it.Y)
		pdf.CellFormat(it.X-it.MarkerX, it.H, tr(it.Marker), "", 0, "LM", false, 0, "")
	}

	if it.Role == RoleTOC && it.PageRef > 0 {
		pdf.SetXY(it.X, it.Y)
		pdf.CellFormat(it.W-tocNumberColumn, it.H, tr(it.Text), "", 0, "LM", false, 0, "")
		pdf.SetXY(it.X, it.Y)
		pdf.CellFormat(it.W, it.H, fmt.Sprintf("%d", it.PageRef), "", 0, "RM", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		return
	}

	pdf.SetXY(it.X, it.Y)
	pdf.CellFormat(it.W, it.H, tr(it.Text), "", 0, pdfAlign(it.Align), false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func pdfAlign(a Align) string {
	switch a {
	case AlignCenter:
		return "CM"
	case AlignRight:
		return "RM"
	default:
		return "LM"
	}
}
