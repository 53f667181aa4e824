package main

import (
	"fmt"
	"strings"
	"time"
)

type officeMeta struct {
	Title    string
	Author   string
	Created  time.Time
	HasCover bool
}

const (
	wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"`

	headingColor = "142D5A"
	mutedColor   = "5A5A5A"
)

// docxWriter turns engine pages into WordprocessingML. Each engine page after
// the first opens with a page-break-before paragraph so Word's pages follow
// the engine's.
type docxWriter struct {
	doc    *Document
	assets map[string]ImageAsset
	body   strings.Builder
	media  []string          // keys in relationship order
	rels   map[string]string // key -> relationship id
	nextID int
}

func renderDOCX(doc *Document, assets map[string]ImageAsset, meta officeMeta) ([]byte, error) {
	w := &docxWriter{doc: doc, assets: assets, rels: map[string]string{}, nextID: 1}

	for pi, page := range doc.Pages {
		parts := pageFragments(page.Items)
		if len(parts) == 0 && pi > 0 {
			w.body.WriteString(`<w:p><w:pPr><w:pageBreakBefore/></w:pPr></w:p>`)
			continue
		}
		for fi, part := range parts {
			breakBefore := pi > 0 && fi == 0
			switch v := part.(type) {
			case fragment:
				spaceTop := 0.0
				if fi == 0 {
					spaceTop = v.first.Y - doc.Profile.MarginTop
				}
				w.paragraph(v, breakBefore, spaceTop)
			case Item:
				w.image(v, breakBefore)
			}
		}
	}

	pkg := newOOXMLPackage()
	pkg.addXML("[Content_Types].xml", docxContentTypes)
	pkg.addXML("_rels/.rels", docxPackageRels)
	pkg.addXML("docProps/core.xml", corePropsXML(meta.Title, meta.Author, meta.Created))
	pkg.addXML("word/styles.xml", docxStyles(doc.Profile))
	pkg.addXML("word/footer1.xml", docxFooter)
	pkg.addXML("word/_rels/document.xml.rels", w.documentRels())
	pkg.addXML("word/document.xml", w.document(meta.HasCover))
	for i, key := range w.media {
		pkg.add(fmt.Sprintf("word/media/image%d.png", i+1), assets[key].PNG)
	}
	return pkg.bytes()
}

func (w *docxWriter) paragraph(f fragment, breakBefore bool, spaceTop float64) {
	p := w.doc.Profile
	it := f.first
	style := p.itemStyle(it)

	var ppr strings.Builder
	switch it.Role {
	case RoleHeading:
		fmt.Fprintf(&ppr, `<w:pStyle w:val="Heading%d"/><w:keepNext/>`, clampLevel(it.Level))
	case RoleTitle:
		ppr.WriteString(`<w:pStyle w:val="Title"/>`)
	case RoleSubtitle:
		ppr.WriteString(`<w:pStyle w:val="Subtitle"/>`)
	case RoleCaption:
		ppr.WriteString(`<w:pStyle w:val="Caption"/>`)
	}
	if breakBefore {
		ppr.WriteString(`<w:pageBreakBefore/>`)
	}
	if it.Role == RoleTOC && it.PageRef > 0 {
		fmt.Fprintf(&ppr, `<w:tabs><w:tab w:val="right" w:leader="dot" w:pos="%d"/></w:tabs>`,
			ptToTwips(it.X-p.MarginLeft+it.W))
	}
	before := style.SpaceBefore
	if spaceTop > 0 {
		before = spaceTop
	}
	fmt.Fprintf(&ppr, `<w:spacing w:before="%d" w:after="%d" w:line="%d" w:lineRule="auto"/>`,
		ptToTwips(before), ptToTwips(style.SpaceAfter), int(style.LineHeight*240))
	if indent := it.X - p.MarginLeft; indent > 0 {
		if it.Marker != "" {
			fmt.Fprintf(&ppr, `<w:ind w:left="%d" w:hanging="%d"/>`, ptToTwips(indent), ptToTwips(it.X-it.MarkerX))
		} else {
			fmt.Fprintf(&ppr, `<w:ind w:left="%d"/>`, ptToTwips(indent))
		}
	}
	if it.Align == AlignCenter {
		ppr.WriteString(`<w:jc w:val="center"/>`)
	}

	w.body.WriteString(`<w:p><w:pPr>`)
	w.body.WriteString(ppr.String())
	w.body.WriteString(`</w:pPr>`)
	if it.Marker != "" {
		w.run(it, it.Marker)
		w.body.WriteString(`<w:r><w:tab/></w:r>`)
	}
	w.run(it, f.text)
	if it.Role == RoleTOC && it.PageRef > 0 {
		w.body.WriteString(`<w:r><w:tab/></w:r>`)
		w.run(it, fmt.Sprintf("%d", it.PageRef))
	}
	w.body.WriteString(`</w:p>`)
}

func (w *docxWriter) run(it Item, text string) {
	w.body.WriteString(`<w:r><w:rPr>`)
	if it.Bold {
		w.body.WriteString(`<w:b/>`)
	}
	switch it.Role {
	case RoleHeading, RoleTitle:
		fmt.Fprintf(&w.body, `<w:color w:val="%s"/>`, headingColor)
	case RoleCaption, RoleSubtitle:
		fmt.Fprintf(&w.body, `<w:color w:val="%s"/>`, mutedColor)
	}
	sz := int(it.Size*2 + 0.5)
	fmt.Fprintf(&w.body, `<w:sz w:val="%d"/><w:szCs w:val="%d"/></w:rPr>`, sz, sz)
	fmt.Fprintf(&w.body, `<w:t xml:space="preserve">%s</w:t></w:r>`, xmlEscape(text))
}

func (w *docxWriter) image(it Item, breakBefore bool) {
	asset, ok := w.assets[it.ImageKey]
	if !ok || len(asset.PNG) == 0 {
		return
	}
	rid, ok := w.rels[it.ImageKey]
	if !ok {
		w.media = append(w.media, it.ImageKey)
		rid = fmt.Sprintf("rIdImg%d", len(w.media))
		w.rels[it.ImageKey] = rid
	}
	id := w.nextID
	w.nextID++
	cx, cy := ptToEMU(it.W), ptToEMU(it.H)

	w.body.WriteString(`<w:p><w:pPr>`)
	if breakBefore {
		w.body.WriteString(`<w:pageBreakBefore/>`)
	}
	w.body.WriteString(`<w:spacing w:before="0" w:after="0"/><w:jc w:val="center"/></w:pPr>`)
	fmt.Fprintf(&w.body, `<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0"><wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d"/><wp:cNvGraphicFramePr><a:graphicFrameLocks noChangeAspect="1"/></wp:cNvGraphicFramePr><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture"><pic:pic><pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr><pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill><pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		cx, cy, id, id, id, xmlEscape(it.ImageKey), rid, cx, cy)
}

func (w *docxWriter) document(hasCover bool) string {
	p := w.doc.Profile
	var b strings.Builder
	fmt.Fprintf(&b, `<w:document %s><w:body>`, wordNS)
	b.WriteString(w.body.String())
	b.WriteString(`<w:sectPr><w:footerReference w:type="default" r:id="rIdFooter"/>`)
	fmt.Fprintf(&b, `<w:pgSz w:w="%d" w:h="%d"/>`, ptToTwips(p.PageWidth), ptToTwips(p.PageHeight))
	fmt.Fprintf(&b, `<w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="%d" w:footer="%d" w:gutter="0"/>`,
		ptToTwips(p.MarginTop), ptToTwips(p.MarginRight), ptToTwips(p.MarginBottom), ptToTwips(p.MarginLeft),
		ptToTwips(p.MarginTop/2), ptToTwips(p.MarginBottom/2))
	if hasCover {
		b.WriteString(`<w:titlePg/>`)
	}
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String()
}

func (w *docxWriter) documentRels() string {
	var b strings.Builder
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	b.WriteString(`<Relationship Id="rIdFooter" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>`)
	for i, key := range w.media {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image%d.png"/>`,
			w.rels[key], i+1)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 3 {
		return 3
	}
	return level
}

func docxStyles(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<w:styles %s>`, wordNS)
	fmt.Fprintf(&b, `<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/><w:sz w:val="%d"/></w:rPr></w:rPrDefault></w:docDefaults>`, int(p.Body.Size*2))
	b.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>`)
	for level, s := range []TextStyle{p.H1, p.H2, p.H3} {
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Heading%d"><w:name w:val="heading %d"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/><w:pPr><w:keepNext/><w:outlineLvl w:val="%d"/></w:pPr><w:rPr><w:b/><w:color w:val="%s"/><w:sz w:val="%d"/></w:rPr></w:style>`,
			level+1, level+1, level, headingColor, int(s.Size*2))
	}
	fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:qFormat/><w:rPr><w:b/><w:color w:val="%s"/><w:sz w:val="%d"/></w:rPr></w:style>`, headingColor, int(p.Title.Size*2))
	fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Subtitle"><w:name w:val="Subtitle"/><w:basedOn w:val="Normal"/><w:qFormat/><w:rPr><w:color w:val="%s"/><w:sz w:val="%d"/></w:rPr></w:style>`, mutedColor, int(p.Subtitle.Size*2))
	fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Caption"><w:name w:val="caption"/><w:basedOn w:val="Normal"/><w:qFormat/><w:rPr><w:i/><w:color w:val="%s"/><w:sz w:val="%d"/></w:rPr></w:style>`, mutedColor, int(p.Caption.Size*2))
	b.WriteString(`</w:styles>`)
	return b.String()
}

const docxContentTypes = `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Default Extension="png" ContentType="image/png"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/><Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/><Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/><Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/></Types>`

const docxPackageRels = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/><Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/></Relationships>`

const docxFooter = `<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:sz w:val="16"/></w:rPr><w:t xml:space="preserve">Page </w:t></w:r><w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText xml:space="preserve"> PAGE </w:instrText></w:r><w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:rPr><w:sz w:val="16"/></w:rPr><w:t>1</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r><w:r><w:rPr><w:sz w:val="16"/></w:rPr><w:t xml:space="preserve"> of </w:t></w:r><w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText xml:space="preserve"> NUMPAGES </w:instrText></w:r><w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:rPr><w:sz w:val="16"/></w:rPr><w:t>1</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r></w:p></w:ftr>`
