package main

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Measurer reports the advance width of text in points.
type Measurer interface {
	Width(text string, size float64, bold bool) float64
}

type Role int

const (
	RoleBody Role = iota
	RoleHeading
	RoleBullet
	RoleCaption
	RoleTOC
	RoleTitle
	RoleSubtitle
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

type ItemKind int

const (
	ItemText ItemKind = iota
	ItemImage
)

// Item is one positioned line of text or one image. Y is the top edge.
type Item struct {
	Kind       ItemKind
	Role       Role
	Align      Align
	BlockIndex int // index into the source blocks, -1 for generated items
	Level      int
	Text       string
	Joined     bool // continues the previous line's word without a space
	Marker     string
	MarkerX    float64
	PageRef    int // TOC entries only
	X, Y       float64
	W, H       float64
	Size       float64
	Bold       bool
	ImageKey   string
}

type Page struct {
	Number int
	Items  []Item
}

type Document struct {
	Profile   Profile
	Pages     []Page
	Headings  []OutlineEntry
	BodyStart int
}

// ImageSlot is an image waiting to be placed. Page is the 1-based target page.
type ImageSlot struct {
	Key     string
	Page    int
	Width   int
	Height  int
	Caption string
}

// pxToPt assumes 96 dpi source images.
const pxToPt = 0.75

type paginator struct {
	p       Profile
	m       Measurer
	pages   []Page
	y       float64
	pending []ImageSlot

	headingPages map[int]int
}

func newPaginator(p Profile, m Measurer) *paginator {
	pg := &paginator{p: p, m: m, headingPages: map[int]int{}}
	pg.startPage()
	return pg
}

func (pg *paginator) page() *Page { return &pg.pages[len(pg.pages)-1] }

func (pg *paginator) pageEmpty() bool { return len(pg.page().Items) == 0 }

func (pg *paginator) bottom() float64 { return pg.p.PageHeight - pg.p.MarginBottom }

func (pg *paginator) contentWidth() float64 {
	return pg.p.PageWidth - pg.p.MarginLeft - pg.p.MarginRight
}

func (pg *paginator) contentHeight() float64 {
	return pg.p.PageHeight - pg.p.MarginTop - pg.p.MarginBottom
}

func (pg *paginator) fits(h float64) bool {
	return pg.y+h <= pg.bottom()+0.01
}

func (pg *paginator) startPage() {
	pg.pages = append(pg.pages, Page{Number: len(pg.pages) + 1})
	pg.y = pg.p.MarginTop
}

// breakPage starts a new page and places images that are due on it.
func (pg *paginator) breakPage() {
	pg.startPage()
	pg.placeDueImages()
}

func (pg *paginator) add(it Item) {
	p := pg.page()
	p.Items = append(p.Items, it)
}

// Paginate flows blocks into fixed-size pages and interleaves images at
// their target pages.
func Paginate(blocks []Block, images []ImageSlot, p Profile, m Measurer) (*Document, error) {
	if len(blocks) == 0 && len(images) == 0 {
		return nil, ErrEmptyDocument
	}

	pg := newPaginator(p, m)
	pg.queueImages(images)
	pg.placeDueImages()

	for i, b := range blocks {
		if b.Kind == BlockPageBreak {
			if !pg.pageEmpty() {
				pg.breakPage()
			}
			continue
		}
		pg.placeDueImages()
		var next *Block
		if i+1 < len(blocks) {
			next = &blocks[i+1]
		}
		pg.placeBlock(i, b, next)
	}

	// Whatever is left targets pages past the end of the text.
	for len(pg.pending) > 0 {
		img := pg.pending[0]
		pg.pending = pg.pending[1:]
		pg.placeImage(img)
	}

	doc := &Document{Profile: p, Pages: pg.pages, BodyStart: 1}
	for i, b := range blocks {
		if b.Kind == BlockHeading && b.Level <= 2 {
			doc.Headings = append(doc.Headings, OutlineEntry{Level: b.Level, Text: b.Text, Page: pg.headingPages[i]})
		}
	}
	return doc, nil
}

func (pg *paginator) queueImages(images []ImageSlot) {
	pg.pending = make([]ImageSlot, len(images))
	copy(pg.pending, images)
	for i := range pg.pending {
		if pg.pending[i].Page < 1 {
			pg.pending[i].Page = 1
		}
	}
	sort.SliceStable(pg.pending, func(i, j int) bool {
		return pg.pending[i].Page < pg.pending[j].Page
	})
}

func (pg *paginator) placeDueImages() {
	for len(pg.pending) > 0 && pg.pending[0].Page <= pg.page().Number {
		img := pg.pending[0]
		pg.pending = pg.pending[1:]
		pg.placeImage(img)
	}
}

func (pg *paginator) lineHeight(s TextStyle) float64 {
	return s.Size * s.LineHeight
}

func (pg *paginator) placeBlock(idx int, b Block, next *Block) {
	style := pg.p.style(b.Kind, b.Level)
	lh := pg.lineHeight(style)
	x := pg.p.MarginLeft + style.Indent
	lines := wrapText(pg.m, b.Text, pg.contentWidth()-style.Indent, style.Size, style.Bold)
	if len(lines) == 0 {
		return
	}

	if b.Kind == BlockHeading {
		need := style.SpaceBefore + lh*float64(len(lines)) + style.SpaceAfter
		if next != nil && next.Kind != BlockPageBreak {
			need += pg.lineHeight(pg.p.style(next.Kind, next.Level))
		}
		// A new page may open with due images, so the check repeats.
		for !pg.pageEmpty() && !pg.fits(need) {
			pg.breakPage()
		}
	}

	if !pg.pageEmpty() {
		if pg.fits(style.SpaceBefore + lh) {
			pg.y += style.SpaceBefore
		} else {
			pg.breakPage()
		}
	}

	role := roleFor(b.Kind)
	for i, line := range lines {
		for !pg.fits(lh) && !pg.pageEmpty() {
			pg.breakPage()
		}
		it := Item{
			Kind:       ItemText,
			Role:       role,
			BlockIndex: idx,
			Level:      b.Level,
			Text:       line.Text,
			Joined:     line.Joined,
			X:          x,
			Y:          pg.y,
			W:          pg.contentWidth() - style.Indent,
			H:          lh,
			Size:       style.Size,
			Bold:       style.Bold,
		}
		if i == 0 {
			if b.Marker != "" {
				it.Marker = b.Marker
				it.MarkerX = pg.p.MarginLeft + style.Indent*0.3
			}
			if b.Kind == BlockHeading {
				pg.headingPages[idx] = pg.page().Number
			}
		}
		pg.add(it)
		pg.y += lh
	}
	pg.y += style.SpaceAfter
}

func (pg *paginator) placeImage(img ImageSlot) {
	w, h := pg.scaleImage(img.Width, img.Height)
	capStyle := pg.p.Caption
	capLines := wrapText(pg.m, img.Caption, pg.contentWidth(), capStyle.Size, capStyle.Bold)
	capH := pg.lineHeight(capStyle) * float64(len(capLines))

	gap := 0.0
	if !pg.pageEmpty() {
		gap = pg.p.ImageSpacing
	}
	if !pg.pageEmpty() && !pg.fits(gap+h+capH) {
		pg.startPage()
		gap = 0
	}
	pg.y += gap

	pg.add(Item{
		Kind:       ItemImage,
		BlockIndex: -1,
		ImageKey:   img.Key,
		X:          pg.p.MarginLeft + (pg.contentWidth()-w)/2,
		Y:          pg.y,
		W:          w,
		H:          h,
	})
	pg.y += h

	for _, line := range capLines {
		pg.add(Item{
			Kind:       ItemText,
			Role:       RoleCaption,
			Align:      AlignCenter,
			BlockIndex: -1,
			Text:       line.Text,
			Joined:     line.Joined,
			X:          pg.p.MarginLeft,
			Y:          pg.y,
			W:          pg.contentWidth(),
			H:          pg.lineHeight(capStyle),
			Size:       capStyle.Size,
			Bold:       capStyle.Bold,
		})
		pg.y += pg.lineHeight(capStyle)
	}
	pg.y += pg.p.ImageSpacing
}

// scaleImage fits an image to the content width, capped at
// ImageMaxHeightRatio of the content height, keeping the aspect ratio.
func (pg *paginator) scaleImage(pxW, pxH int) (float64, float64) {
	if pxW <= 0 || pxH <= 0 {
		pxW, pxH = 4, 3
	}
	aspect := float64(pxH) / float64(pxW)
	w := float64(pxW) * pxToPt
	if cw := pg.contentWidth(); w > cw {
		w = cw
	}
	h := w * aspect
	ratio := pg.p.ImageMaxHeightRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.6
	}
	if maxH := pg.contentHeight() * ratio; h > maxH {
		h = maxH
		w = h / aspect
	}
	return w, h
}

func roleFor(k BlockKind) Role {
	switch k {
	case BlockHeading:
		return RoleHeading
	case BlockBullet, BlockNumbered:
		return RoleBullet
	default:
		return RoleBody
	}
}

// textLine is one wrapped line. Joined is set when the line continues a word
// that was split at the previous line break.
type textLine struct {
	Text   string
	Joined bool
}

// wrapText breaks text into lines no wider than width. Words wider than a
// full line are split by rune.
func wrapText(m Measurer, text string, width, size float64, bold bool) []textLine {
	var lines []textLine
	var cur textLine
	for _, word := range strings.Fields(text) {
		if m.Width(word, size, bold) > width {
			if cur.Text != "" {
				lines = append(lines, cur)
			}
			parts := splitLongWord(m, word, width, size, bold)
			for i, part := range parts[:len(parts)-1] {
				lines = append(lines, textLine{Text: part, Joined: i > 0})
			}
			cur = textLine{Text: parts[len(parts)-1], Joined: len(parts) > 1}
			continue
		}
		if cur.Text == "" {
			cur.Text = word
			continue
		}
		if cand := cur.Text + " " + word; m.Width(cand, size, bold) <= width {
			cur.Text = cand
			continue
		}
		lines = append(lines, cur)
		cur = textLine{Text: word}
	}
	if cur.Text != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitLongWord(m Measurer, word string, width, size float64, bold bool) []string {
	var parts []string
	start := 0
	for start < len(word) {
		end := start
		for end < len(word) {
			_, n := utf8.DecodeRuneInString(word[end:])
			if end > start && m.Width(word[start:end+n], size, bold) > width {
				break
			}
			end += n
		}
		parts = append(parts, word[start:end])
		start = end
	}
	return parts
}
