package main

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var pageNumberLineRe = regexp.MustCompile(`(?i)^(page\s+)?\d{1,4}(\s*(/|of)\s*\d{1,4})?$`)

// extractPDFMarkup pulls the text out of every PDF page. Page boundaries
// become explicit page breaks; footer page numbers are dropped.
func extractPDFMarkup(data []byte) (string, error) {
	pages, err := pdfPageTexts(data)
	if err != nil {
		return "", err
	}

	var out []string
	for _, page := range pages {
		var lines []string
		for _, line := range strings.Split(cleanUnicodeText(page), "\n") {
			if pageNumberLineRe.MatchString(strings.TrimSpace(line)) {
				continue
			}
			lines = append(lines, line)
		}
		if text := strings.TrimSpace(strings.Join(lines, "\n")); text != "" {
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: no text found in PDF", ErrEmptyDocument)
	}
	return strings.Join(out, "\n\n[PAGEBREAK]\n\n"), nil
}

// docxParagraph collects one w:p while decoding word/document.xml.
type docxParagraph struct {
	style     string
	list      bool
	pageBreak bool
	text      strings.Builder
}

func (p *docxParagraph) markup() string {
	text := strings.TrimSpace(strings.Join(strings.Fields(p.text.String()), " "))
	if text == "" {
		return ""
	}
	style := strings.ToLower(p.style)
	switch {
	case style == "title":
		return "# " + text
	case strings.HasPrefix(style, "heading"):
		level, err := strconv.Atoi(strings.TrimPrefix(style, "heading"))
		if err != nil || level < 1 {
			level = 1
		}
		if level > 3 {
			level = 3
		}
		return strings.Repeat("#", level) + " " + text
	case p.list || style == "listparagraph" || style == "listbullet":
		if numberedRe.MatchString(text) || strings.HasPrefix(text, "• ") {
			return text
		}
		return "- " + text
	}
	return text
}

// extractDOCXMarkup maps Word paragraph styles onto markup: Title and
// HeadingN become headings, list paragraphs become bullets.
func extractDOCXMarkup(data []byte) (string, error) {
	documentXML, err := readZipEntry(data, "word/document.xml")
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(documentXML))
	var (
		out    []string
		para   *docxParagraph
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed word/document.xml: %v", ErrInvalidRequest, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para = &docxParagraph{}
			case "pStyle":
				if para != nil {
					para.style = attr(t, "val")
				}
			case "numPr":
				if para != nil {
					para.list = true
				}
			case "pageBreakBefore":
				if para != nil {
					para.pageBreak = true
				}
			case "br":
				if para != nil && attr(t, "type") == "page" {
					para.pageBreak = true
				} else if para != nil {
					para.text.WriteByte(' ')
				}
			case "tab":
				// A leading tab only indents.
				if para != nil && para.text.Len() > 0 {
					para.text.WriteByte(' ')
				}
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText && para != nil {
				para.text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para == nil {
					continue
				}
				if para.pageBreak && len(out) > 0 {
					out = append(out, "[PAGEBREAK]")
				}
				if line := para.markup(); line != "" {
					out = append(out, cleanUnicodeText(line))
				}
				para = nil
			}
		}
	}
	return joinMarkupLines(out)
}

// extractODTMarkup reads content.xml. text:h carries its outline level,
// text:list-item paragraphs become bullets.
func extractODTMarkup(data []byte) (string, error) {
	contentXML, err := readZipEntry(data, "content.xml")
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(contentXML))
	var (
		out       []string
		listDepth int
		depth     int // nesting of text:p / text:h, spans are inside
		heading   int
		text      strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed content.xml: %v", ErrInvalidRequest, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "list-item":
				listDepth++
			case "h":
				depth++
				heading, _ = strconv.Atoi(attr(t, "outline-level"))
				if heading < 1 {
					heading = 1
				}
				text.Reset()
			case "p":
				depth++
				heading = 0
				text.Reset()
			case "s":
				n, _ := strconv.Atoi(attr(t, "c"))
				if n < 1 {
					n = 1
				}
				text.WriteString(strings.Repeat(" ", n))
			case "tab", "line-break":
				text.WriteByte(' ')
			case "soft-page-break":
				out = append(out, "[PAGEBREAK]")
			}
		case xml.CharData:
			if depth > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "list-item":
				listDepth--
			case "h", "p":
				depth--
				line := strings.Join(strings.Fields(text.String()), " ")
				text.Reset()
				if line == "" {
					continue
				}
				switch {
				case heading > 0:
					line = strings.Repeat("#", min(heading, 3)) + " " + line
				case listDepth > 0:
					line = "- " + line
				}
				out = append(out, cleanUnicodeText(line))
				heading = 0
			}
		}
	}
	return joinMarkupLines(out)
}

// joinMarkupLines separates paragraphs with blank lines so the parser
// does not merge them.
func joinMarkupLines(lines []string) (string, error) {
	for len(lines) > 0 && lines[len(lines)-1] == "[PAGEBREAK]" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: no text found in document", ErrEmptyDocument)
	}
	return strings.Join(lines, "\n\n"), nil
}

func readZipEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip package: %v", ErrInvalidRequest, err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(io.LimitReader(rc, maxZipEntryBytes))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s not found in package", ErrInvalidRequest, name)
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// cleanUnicodeText strips invisible characters and collapses runs of
// spaces line by line. Line structure is kept.
func cleanUnicodeText(text string) string {
	if text == "" {
		return text
	}
	text = strings.NewReplacer(
		"\u200B", "",
		"\u200C", "",
		"\u200D", "",
		"\uFEFF", "",
		"\u00A0", " ",
	).Replace(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isRTLText(line) {
			line = fixRTLSpacing(line)
		}
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// isRTLText reports whether most letters are Hebrew or Arabic.
func isRTLText(text string) bool {
	rtl, letters := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if isRTLCharacter(r) {
				rtl++
			}
		}
	}
	return letters > 0 && float64(rtl)/float64(letters) > 0.5
}

func isRTLCharacter(r rune) bool {
	switch {
	case r >= 0x0590 && r <= 0x05FF: // Hebrew
		return true
	case r >= 0x0600 && r <= 0x06FF, r >= 0x0750 && r <= 0x077F, r >= 0x08A0 && r <= 0x08FF: // Arabic
		return true
	}
	return false
}

// fixRTLSpacing rejoins RTL words that extraction split into single
// characters separated by spaces.
func fixRTLSpacing(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var fixed []string
	var current strings.Builder
	for _, word := range words {
		runes := []rune(word)
		if len(runes) == 1 && isRTLCharacter(runes[0]) {
			current.WriteString(word)
			continue
		}
		if current.Len() > 0 {
			fixed = append(fixed, current.String())
			current.Reset()
		}
		fixed = append(fixed, word)
	}
	if current.Len() > 0 {
		fixed = append(fixed, current.String())
	}
	return strings.Join(fixed, " ")
}
