package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const odtContent = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:text>
<text:h text:outline-level="1">Edge Computing</text:h>
<text:p>Latency<text:s text:c="3"/>matters<text:tab/>a lot.</text:p>
<text:list><text:list-item><text:p>Local processing</text:p></text:list-item></text:list>
<text:p></text:p>
<text:soft-page-break/>
<text:h text:outline-level="5">Deep <text:span>heading</text:span></text:h>
</office:text></office:body>
</office:document-content>`

const docxDocument = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Service Mesh</w:t></w:r></w:p>
<w:p><w:r><w:tab/><w:t xml:space="preserve">Sidecars </w:t></w:r><w:r><w:t>proxy</w:t><w:tab/><w:t>traffic.</w:t></w:r></w:p>
<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>mTLS everywhere</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="ListParagraph"/></w:pPr><w:r><w:t>2. Observability</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading4"/><w:pageBreakBefore/></w:pPr><w:r><w:t>Control Plane</w:t></w:r></w:p>
<w:p><w:r><w:br w:type="page"/></w:r></w:p>
</w:body></w:document>`

func TestExtractODTMarkup(t *testing.T) {
	data := buildZip(t, map[string]string{"mimetype": "application/vnd.oasis.opendocument.text", "content.xml": odtContent})
	assert.Equal(t, sourceODT, detectFileType(data))

	got, err := extractODTMarkup(data)
	require.NoError(t, err)
	assert.Equal(t, "# Edge Computing\n\nLatency matters a lot.\n\n- Local processing\n\n[PAGEBREAK]\n\n### Deep heading", got)
}

func TestExtractDOCXMarkup(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": docxDocument})
	assert.Equal(t, sourceDOCX, detectFileType(data))

	got, err := extractDOCXMarkup(data)
	require.NoError(t, err)
	assert.Equal(t, "# Service Mesh\n\nSidecars proxy traffic.\n\n- mTLS everywhere\n\n2. Observability\n\n[PAGEBREAK]\n\n### Control Plane", got)
}

func TestExtractErrors(t *testing.T) {
	_, err := extractDOCXMarkup([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = extractODTMarkup(buildZip(t, map[string]string{"other.xml": "<a/>"}))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	empty := buildZip(t, map[string]string{"word/document.xml": `<w:document xmlns:w="x"><w:body><w:p/></w:body></w:document>`})
	_, err = extractDOCXMarkup(empty)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	broken := buildZip(t, map[string]string{"content.xml": "<office:text><text:p>unclosed"})
	_, err = extractODTMarkup(broken)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = extractMarkup([]byte{1, 2, 3}, "unknown")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDetectFileType(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7\n..."), sourcePDF},
		{"markdown", []byte("# Title\n\nBody"), sourceText},
		{"short text", []byte("ok"), sourceText},
		{"zip without parts", buildZip(t, map[string]string{"a.txt": "x"}), "unknown"},
		{"broken zip", []byte("PK\x03\x04garbage"), "unknown"},
		{"binary", []byte{0xff, 0xfe, 0xfd, 0x00, 0x80}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectFileType(tc.data))
		})
	}
}

func TestDetectFileTypeFromName(t *testing.T) {
	cases := map[string]string{
		"Report.PDF":   sourcePDF,
		"notes.md":     sourceText,
		"notes.txt":    sourceText,
		"draft.docx":   sourceDOCX,
		"draft.odt":    sourceODT,
		"legacy.doc":   "unknown",
		"no-extension": "unknown",
	}
	for name, want := range cases {
		assert.Equal(t, want, detectFileTypeFromName(name), name)
	}
}

func TestCleanUnicodeText(t *testing.T) {
	assert.Equal(t, "", cleanUnicodeText(""))
	assert.Equal(t, "zero trust\nsecond line", cleanUnicodeText("zero\u200B  trust\u00A0\n\uFEFFsecond   line "))
	assert.Equal(t, "שלום עולם", cleanUnicodeText("ש ל ו ם עולם"))
	assert.Equal(t, "a b c", cleanUnicodeText("a b c"), "latin single letters are left alone")
}

func TestIsRTLText(t *testing.T) {
	assert.True(t, isRTLText("مرحبا"))
	assert.False(t, isRTLText("hello ש"))
	assert.False(t, isRTLText("123 !"))
}

func TestPageNumberLines(t *testing.T) {
	for _, line := range []string{"7", "Page 3", "page 3 of 12", "4 / 9"} {
		assert.True(t, pageNumberLineRe.MatchString(line), line)
	}
	for _, line := range []string{"Chapter 3", "2024 revenue grew", "12345"} {
		assert.False(t, pageNumberLineRe.MatchString(line), line)
	}
}

func TestParseImageFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, testPNG(t, 4, 4), 0o644))

	spec, err := parseImageFlag("2:" + path + ":Figure 2: throughput")
	require.NoError(t, err)
	assert.Equal(t, 2, spec.Page)
	assert.Equal(t, "Figure 2: throughput", spec.Caption)
	_, err = decodeImageData(spec.Data)
	assert.NoError(t, err)

	for _, bad := range []string{"nopath", "x:" + path, "1:", "1:/does/not/exist.png"} {
		_, err := parseImageFlag(bad)
		assert.Error(t, err, bad)
	}
}
