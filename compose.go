package main

// ComposeInput is everything needed to lay out one export.
type ComposeInput struct {
	Title    string
	Subtitle string
	Author   string
	Date     string
	Blocks   []Block
	Images   []ImageSlot
	Cover    *ImageSlot

	IncludeCover bool
	IncludeTOC   bool
}

// tocNumberColumn is the space reserved on the right of each TOC line for
// the page number.
const tocNumberColumn = 36

// Compose lays out the optional cover and table of contents and the body.
// The body is paginated first so the TOC can reference real page numbers;
// TOC entries are single lines, so its page count does not depend on them.
func Compose(in ComposeInput, p Profile, m Measurer) (*Document, error) {
	body, err := Paginate(in.Blocks, in.Images, p, m)
	if err != nil {
		return nil, err
	}

	var front []Page
	if in.IncludeCover {
		front = append(front, layoutCover(in, p, m))
	}

	var toc []Page
	if in.IncludeTOC && len(body.Headings) > 0 {
		toc = layoutTOC(body.Headings, p, m)
	}

	offset := len(front) + len(toc)
	doc := &Document{Profile: p, BodyStart: offset + 1}
	doc.Pages = append(doc.Pages, front...)
	doc.Pages = append(doc.Pages, toc...)
	doc.Pages = append(doc.Pages, body.Pages...)
	for i := range doc.Pages {
		doc.Pages[i].Number = i + 1
		for j := range doc.Pages[i].Items {
			it := &doc.Pages[i].Items[j]
			if it.Role == RoleTOC && it.PageRef > 0 {
				it.PageRef += offset
			}
		}
	}
	for _, h := range body.Headings {
		h.Page += offset
		doc.Headings = append(doc.Headings, h)
	}
	return doc, nil
}

func layoutCover(in ComposeInput, p Profile, m Measurer) Page {
	pg := newPaginator(p, m)
	pg.y = p.MarginTop + pg.contentHeight()*0.18

	centered := func(text string, s TextStyle, role Role) {
		for _, line := range wrapText(m, text, pg.contentWidth(), s.Size, s.Bold) {
			pg.add(Item{
				Kind: ItemText, Role: role, Align: AlignCenter, BlockIndex: -1,
				Text: line.Text, Joined: line.Joined, X: p.MarginLeft, Y: pg.y,
				W: pg.contentWidth(), H: s.Size * s.LineHeight, Size: s.Size, Bold: s.Bold,
			})
			pg.y += s.Size * s.LineHeight
		}
	}

	title := in.Title
	if title == "" {
		title = "Whitepaper"
	}
	centered(title, p.Title, RoleTitle)
	if in.Subtitle != "" {
		pg.y += p.Subtitle.Size * 0.6
		centered(in.Subtitle, p.Subtitle, RoleSubtitle)
	}
	meta := in.Author
	if in.Date != "" {
		if meta != "" {
			meta += " · "
		}
		meta += in.Date
	}
	if meta != "" {
		pg.y += p.Body.Size
		centered(meta, p.Body, RoleBody)
	}

	if in.Cover != nil {
		pg.y += p.ImageSpacing * 2
		w, h := pg.scaleImage(in.Cover.Width, in.Cover.Height)
		if room := pg.bottom() - pg.y; h > room && room > 0 {
			w = w * room / h
			h = room
		}
		if h > 0 {
			pg.add(Item{
				Kind: ItemImage, BlockIndex: -1, ImageKey: in.Cover.Key,
				X: p.MarginLeft + (pg.contentWidth()-w)/2, Y: pg.y, W: w, H: h,
			})
		}
	}

	return pg.pages[0]
}

func layoutTOC(headings []OutlineEntry, p Profile, m Measurer) []Page {
	pg := newPaginator(p, m)
	pg.placeBlock(-1, Block{Kind: BlockHeading, Level: 1, Text: "Contents"}, nil)

	s := p.TOC
	lh := s.Size * s.LineHeight
	for _, h := range headings {
		indent := 0.0
		if h.Level > 1 {
			indent = 14
		}
		width := pg.contentWidth() - indent - tocNumberColumn
		if !pg.fits(lh) {
			pg.startPage()
		}
		pg.add(Item{
			Kind:       ItemText,
			Role:       RoleTOC,
			BlockIndex: -1,
			Level:      h.Level,
			Text:       truncateToWidth(m, h.Text, width, s.Size, h.Level == 1),
			PageRef:    h.Page,
			X:          p.MarginLeft + indent,
			Y:          pg.y,
			W:          pg.contentWidth() - indent,
			H:          lh,
			Size:       s.Size,
			Bold:       h.Level == 1,
		})
		pg.y += lh
	}
	return pg.pages
}

func truncateToWidth(m Measurer, text string, width, size float64, bold bool) string {
	if m.Width(text, size, bold) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		cand := string(runes) + "…"
		if m.Width(cand, size, bold) <= width {
			return cand
		}
	}
	return ""
}
