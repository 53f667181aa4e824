package main

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestReadMultipartFileSizeLimit(t *testing.T) {
	// Documents may be larger than any single image.
	big := bytes.Repeat([]byte("word "), (maxImageBytes+1024)/5)
	data, fileType, err := readMultipartFile(formFile(t, "big.md", big))
	require.NoError(t, err)
	assert.Equal(t, sourceText, fileType)
	assert.Len(t, data, len(big))

	tooBig := make([]byte, maxUploadBytes+1)
	_, _, err = readMultipartFile(formFile(t, "huge.pdf", tooBig))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReadMultipartFileDetectsUnnamedType(t *testing.T) {
	_, fileType, err := readMultipartFile(formFile(t, "upload", []byte("%PDF-1.4\n...")))
	require.NoError(t, err)
	assert.Equal(t, sourcePDF, fileType)
}
