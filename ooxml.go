package main

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// ptToEMU converts points to English Metric Units.
func ptToEMU(pt float64) int64 { return int64(pt * 12700) }

// ptToTwips converts points to twentieths of a point.
func ptToTwips(pt float64) int { return int(pt*20 + 0.5) }

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// ooxmlPackage collects the parts of an Office Open XML zip package.
type ooxmlPackage struct {
	buf bytes.Buffer
	zw  *zip.Writer
	err error
}

func newOOXMLPackage() *ooxmlPackage {
	p := &ooxmlPackage{}
	p.zw = zip.NewWriter(&p.buf)
	return p
}

func (p *ooxmlPackage) add(name string, data []byte) {
	if p.err != nil {
		return
	}
	w, err := p.zw.Create(name)
	if err != nil {
		p.err = fmt.Errorf("create %s: %w", name, err)
		return
	}
	if _, err := w.Write(data); err != nil {
		p.err = fmt.Errorf("write %s: %w", name, err)
	}
}

func (p *ooxmlPackage) addXML(name, body string) {
	p.add(name, []byte(xmlHeader+body))
}

func (p *ooxmlPackage) bytes() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := p.zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return p.buf.Bytes(), nil
}

func corePropsXML(title, author string, created time.Time) string {
	if created.IsZero() {
		created = time.Now()
	}
	return fmt.Sprintf(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:title>%s</dc:title><dc:creator>%s</dc:creator><dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created></cp:coreProperties>`,
		xmlEscape(title), xmlEscape(author), created.UTC().Format(time.RFC3339))
}

// fragment is a run of consecutive text lines on one page that belong to
// the same block. Word and PowerPoint re-wrap them, so they are emitted as
// one paragraph.
type fragment struct {
	first Item
	last  Item
	text  string
}

func pageFragments(items []Item) []interface{} {
	var out []interface{}
	var cur *fragment
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, it := range items {
		if it.Kind == ItemImage {
			flush()
			out = append(out, it)
			continue
		}
		if cur != nil && continues(cur.first, it) {
			if !it.Joined {
				cur.text += " "
			}
			cur.text += it.Text
			cur.last = it
			continue
		}
		flush()
		cur = &fragment{first: it, last: it, text: it.Text}
	}
	flush()
	return out
}

func continues(first, it Item) bool {
	if it.Role != first.Role {
		return false
	}
	if it.BlockIndex >= 0 {
		return it.BlockIndex == first.BlockIndex
	}
	switch it.Role {
	case RoleCaption, RoleTitle, RoleSubtitle:
		return true
	}
	return false
}

func (f fragment) height() float64 { return f.last.Y + f.last.H - f.first.Y }
