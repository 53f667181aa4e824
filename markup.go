package main

import (
	"regexp"
	"strings"
)

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockBullet
	BlockNumbered
	BlockPageBreak
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "heading"
	case BlockBullet:
		return "bullet"
	case BlockNumbered:
		return "numbered"
	case BlockPageBreak:
		return "page_break"
	default:
		return "paragraph"
	}
}

// Block is one logical unit of the generated text.
type Block struct {
	Kind   BlockKind `json:"kind"`
	Level  int       `json:"level,omitempty"`
	Text   string    `json:"text,omitempty"`
	Marker string    `json:"marker,omitempty"`
}

var (
	numberedRe   = regexp.MustCompile(`^(\d{1,3})[.)]\s+(.*)$`)
	boldLineRe   = regexp.MustCompile(`^\*\*([^*]+)\*\*:?$`)
	inlineBoldRe = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	spacesRe     = regexp.MustCompile(`[ \t]+`)
)

// parseMarkup turns the model's text into blocks.
func parseMarkup(text string) []Block {
	text = normalizeText(text)

	var blocks []Block
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		joined := cleanInline(strings.Join(para, " "))
		if joined != "" {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: joined})
		}
		para = para[:0]
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		if line == "" {
			flush()
			continue
		}

		switch {
		case line == "---" || line == "***" || line == "___" || strings.EqualFold(line, "[PAGEBREAK]"):
			flush()
			blocks = append(blocks, Block{Kind: BlockPageBreak})
			continue
		case strings.HasPrefix(line, "#"):
			level := 0
			for level < len(line) && line[level] == '#' {
				level++
			}
			if level <= 6 && level < len(line) && line[level] == ' ' {
				flush()
				t := cleanInline(line[level:])
				if level > 3 {
					level = 3
				}
				if t != "" {
					blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Text: t})
				}
				continue
			}
		case boldLineRe.MatchString(line):
			flush()
			m := boldLineRe.FindStringSubmatch(line)
			blocks = append(blocks, Block{Kind: BlockHeading, Level: 3, Text: cleanInline(m[1])})
			continue
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "• "):
			flush()
			_, rest, _ := strings.Cut(line, " ")
			if t := cleanInline(rest); t != "" {
				blocks = append(blocks, Block{Kind: BlockBullet, Text: t, Marker: "•"})
			}
			continue
		}

		if m := numberedRe.FindStringSubmatch(line); m != nil {
			flush()
			if t := cleanInline(m[2]); t != "" {
				blocks = append(blocks, Block{Kind: BlockNumbered, Text: t, Marker: m[1] + "."})
			}
			continue
		}

		para = append(para, line)
	}
	flush()

	return trimPageBreaks(blocks)
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n[PAGEBREAK]\n")
	for _, zw := range []string{"\u200B", "\u200C", "\u200D", "\uFEFF"} {
		text = strings.ReplaceAll(text, zw, "")
	}
	return cleanModelOutput(text)
}

func cleanInline(s string) string {
	s = inlineBoldRe.ReplaceAllString(s, "$1$2")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// trimPageBreaks drops leading, trailing and repeated page breaks.
func trimPageBreaks(blocks []Block) []Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b.Kind == BlockPageBreak && (len(out) == 0 || out[len(out)-1].Kind == BlockPageBreak) {
			continue
		}
		out = append(out, b)
	}
	for len(out) > 0 && out[len(out)-1].Kind == BlockPageBreak {
		out = out[:len(out)-1]
	}
	return out
}

// documentTitle returns the first level-1 heading, or "".
func documentTitle(blocks []Block) string {
	for _, b := range blocks {
		if b.Kind == BlockHeading && b.Level == 1 {
			return b.Text
		}
	}
	return ""
}

type OutlineEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Page  int    `json:"page,omitempty"`
}

func outline(blocks []Block) []OutlineEntry {
	var out []OutlineEntry
	for _, b := range blocks {
		if b.Kind == BlockHeading && b.Level <= 2 {
			out = append(out, OutlineEntry{Level: b.Level, Text: b.Text})
		}
	}
	return out
}
