package main

import (
	"fmt"
	"strings"
)

const presentationNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

// pptxWriter emits one slide per engine page. Text fragments become text
// boxes at the engine's coordinates, so PowerPoint only re-wraps inside a box.
type pptxWriter struct {
	doc    *Document
	assets map[string]ImageAsset
	media  []string
	index  map[string]int // key -> media number
}

func renderPPTX(doc *Document, assets map[string]ImageAsset, meta officeMeta) ([]byte, error) {
	w := &pptxWriter{doc: doc, assets: assets, index: map[string]int{}}
	p := doc.Profile
	total := len(doc.Pages)

	pkg := newOOXMLPackage()
	slides := make([]string, 0, total)
	slideRels := make([]string, 0, total)
	for _, page := range doc.Pages {
		showNumber := !(meta.HasCover && page.Number == 1)
		xml, rels := w.slide(page, total, showNumber)
		slides = append(slides, xml)
		slideRels = append(slideRels, rels)
	}

	pkg.addXML("[Content_Types].xml", pptxContentTypes(total))
	pkg.addXML("_rels/.rels", pptxPackageRels)
	pkg.addXML("docProps/core.xml", corePropsXML(meta.Title, meta.Author, meta.Created))
	pkg.addXML("ppt/presentation.xml", pptxPresentation(total, p))
	pkg.addXML("ppt/_rels/presentation.xml.rels", pptxPresentationRels(total))
	pkg.addXML("ppt/slideMasters/slideMaster1.xml", pptxSlideMaster)
	pkg.addXML("ppt/slideMasters/_rels/slideMaster1.xml.rels", pptxSlideMasterRels)
	pkg.addXML("ppt/slideLayouts/slideLayout1.xml", pptxSlideLayout)
	pkg.addXML("ppt/slideLayouts/_rels/slideLayout1.xml.rels", pptxSlideLayoutRels)
	pkg.addXML("ppt/theme/theme1.xml", pptxTheme)
	for i := range slides {
		pkg.addXML(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slides[i])
		pkg.addXML(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), slideRels[i])
	}
	for i, key := range w.media {
		pkg.add(fmt.Sprintf("ppt/media/image%d.png", i+1), assets[key].PNG)
	}
	return pkg.bytes()
}

func (w *pptxWriter) slide(page Page, total int, showNumber bool) (string, string) {
	var sp strings.Builder
	var rels strings.Builder
	rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	rels.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`)

	linked := map[string]string{}
	id := 2
	for _, part := range pageFragments(page.Items) {
		switch v := part.(type) {
		case fragment:
			w.textBox(&sp, id, v)
		case Item:
			asset, ok := w.assets[v.ImageKey]
			if !ok || len(asset.PNG) == 0 {
				continue
			}
			rid, ok := linked[v.ImageKey]
			if !ok {
				n, seen := w.index[v.ImageKey]
				if !seen {
					w.media = append(w.media, v.ImageKey)
					n = len(w.media)
					w.index[v.ImageKey] = n
				}
				rid = fmt.Sprintf("rIdImg%d", n)
				linked[v.ImageKey] = rid
				fmt.Fprintf(&rels, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image%d.png"/>`, rid, n)
			}
			fmt.Fprintf(&sp, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr><p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill><p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
				id, id, rid, ptToEMU(v.X), ptToEMU(v.Y), ptToEMU(v.W), ptToEMU(v.H))
		}
		id++
	}

	if showNumber {
		p := w.doc.Profile
		num := Item{
			Role: RoleCaption, Align: AlignRight, BlockIndex: -1,
			Text: fmt.Sprintf("%d / %d", page.Number, total),
			X:    p.MarginLeft, Y: p.PageHeight - p.MarginBottom*0.75,
			W: p.PageWidth - p.MarginLeft - p.MarginRight, H: p.Caption.Size * 1.5,
			Size: p.Caption.Size,
		}
		w.textBox(&sp, id, fragment{first: num, last: num, text: num.Text})
	}
	rels.WriteString(`</Relationships>`)

	var b strings.Builder
	fmt.Fprintf(&b, `<p:sld %s><p:cSld><p:spTree>`, presentationNS)
	b.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`)
	b.WriteString(sp.String())
	b.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	return b.String(), rels.String()
}

func (w *pptxWriter) textBox(b *strings.Builder, id int, f fragment) {
	p := w.doc.Profile
	it := f.first
	style := p.itemStyle(it)

	x := it.X
	width := it.W
	if it.Marker != "" {
		x = it.MarkerX
		width += it.X - it.MarkerX
	}

	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="TextBox %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, id)
	fmt.Fprintf(b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`,
		ptToEMU(x), ptToEMU(it.Y), ptToEMU(width), ptToEMU(f.height()))
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" lIns="0" tIns="0" rIns="0" bIns="0" rtlCol="0" anchor="t"><a:noAutofit/></a:bodyPr><a:lstStyle/><a:p>`)

	var ppr strings.Builder
	switch it.Align {
	case AlignCenter:
		ppr.WriteString(` algn="ctr"`)
	case AlignRight:
		ppr.WriteString(` algn="r"`)
	}
	text := f.text
	bullet := ""
	if it.Marker != "" {
		hang := ptToEMU(it.X - it.MarkerX)
		fmt.Fprintf(&ppr, ` marL="%d" indent="%d"`, hang, -hang)
		if it.Marker == "•" {
			bullet = `<a:buFont typeface="Arial"/><a:buChar char="•"/>`
		} else {
			text = it.Marker + " " + text
		}
	}
	fmt.Fprintf(b, `<a:pPr%s><a:lnSpc><a:spcPct val="%d"/></a:lnSpc>%s</a:pPr>`, ppr.String(), int(style.LineHeight*100000), bullet)

	if it.Role == RoleTOC && it.PageRef > 0 {
		text = fmt.Sprintf("%s  ·  %d", text, it.PageRef)
	}
	b.WriteString(`<a:r><a:rPr lang="en-US"`)
	fmt.Fprintf(b, ` sz="%d"`, int(it.Size*100))
	if it.Bold {
		b.WriteString(` b="1"`)
	}
	b.WriteString(` dirty="0">`)
	switch it.Role {
	case RoleHeading, RoleTitle:
		fmt.Fprintf(b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, headingColor)
	case RoleCaption, RoleSubtitle:
		fmt.Fprintf(b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, mutedColor)
	}
	fmt.Fprintf(b, `</a:rPr><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`, xmlEscape(text))
}

func pptxContentTypes(slides int) string {
	var b strings.Builder
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&b, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i)
	}
	b.WriteString(`</Types>`)
	return b.String()
}

func pptxPresentation(slides int, p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:presentation %s saveSubsetFonts="1">`, presentationNS)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rIdMaster"/></p:sldMasterIdLst><p:sldIdLst>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rIdSlide%d"/>`, 255+i, i)
	}
	fmt.Fprintf(&b, `</p:sldIdLst><p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/></p:presentation>`,
		ptToEMU(p.PageWidth), ptToEMU(p.PageHeight))
	return b.String()
}

func pptxPresentationRels(slides int) string {
	var b strings.Builder
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rIdMaster" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	b.WriteString(`<Relationship Id="rIdTheme" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="theme/theme1.xml"/>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&b, `<Relationship Id="rIdSlide%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, i, i)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

const pptxPackageRels = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/><Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/></Relationships>`

const pptxEmptyTree = `<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr></p:spTree>`

const pptxSlideMaster = `<p:sldMaster ` + presentationNS + `><p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` + pptxEmptyTree + `</p:cSld><p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/><p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst></p:sldMaster>`

const pptxSlideMasterRels = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/><Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="../theme/theme1.xml"/></Relationships>`

const pptxSlideLayout = `<p:sldLayout ` + presentationNS + ` type="blank" preserve="1"><p:cSld name="Blank">` + pptxEmptyTree + `</p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

const pptxSlideLayoutRels = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="../slideMasters/slideMaster1.xml"/></Relationships>`

const pptxSolidFill = `<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`

const pptxLine = `<a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`

const pptxTheme = `<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Whitepaper"><a:themeElements>` +
	`<a:clrScheme name="Whitepaper"><a:dk1><a:srgbClr val="000000"/></a:dk1><a:lt1><a:srgbClr val="FFFFFF"/></a:lt1><a:dk2><a:srgbClr val="142D5A"/></a:dk2><a:lt2><a:srgbClr val="EEF2F8"/></a:lt2><a:accent1><a:srgbClr val="2F5597"/></a:accent1><a:accent2><a:srgbClr val="ED7D31"/></a:accent2><a:accent3><a:srgbClr val="A5A5A5"/></a:accent3><a:accent4><a:srgbClr val="FFC000"/></a:accent4><a:accent5><a:srgbClr val="5B9BD5"/></a:accent5><a:accent6><a:srgbClr val="70AD47"/></a:accent6><a:hlink><a:srgbClr val="0563C1"/></a:hlink><a:folHlink><a:srgbClr val="954F72"/></a:folHlink></a:clrScheme>` +
	`<a:fontScheme name="Whitepaper"><a:majorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont><a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont></a:fontScheme>` +
	`<a:fmtScheme name="Whitepaper"><a:fillStyleLst>` + pptxSolidFill + pptxSolidFill + pptxSolidFill + `</a:fillStyleLst><a:lnStyleLst>` + pptxLine + pptxLine + pptxLine + `</a:lnStyleLst><a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst><a:bgFillStyleLst>` + pptxSolidFill + pptxSolidFill + pptxSolidFill + `</a:bgFillStyleLst></a:fmtScheme>` +
	`</a:themeElements></a:theme>`
