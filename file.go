package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
)

const (
	sourceText = "text"
	sourcePDF  = "pdf"
	sourceDOCX = "docx"
	sourceODT  = "odt"
)

const maxUploadBytes = 20 << 20

// maxZipEntryBytes caps the inflated size of one part of an uploaded DOCX or ODT.
const maxZipEntryBytes = 2 * maxUploadBytes

// getFileFromRequest reads the multipart field "file". It returns the bytes,
// detected source type and filename.
func getFileFromRequest(c *fiber.Ctx) ([]byte, string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil || fh == nil {
		return nil, "", "", fmt.Errorf("no file provided (use multipart field 'file')")
	}
	data, fileType, err := readMultipartFile(fh)
	return data, fileType, fh.Filename, err
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("cannot open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("cannot read uploaded file: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, "", fmt.Errorf("%w: uploaded file exceeds %d bytes", ErrInvalidRequest, maxUploadBytes)
	}

	fileType := detectFileTypeFromName(fh.Filename)
	if fileType == "unknown" {
		fileType = detectFileType(data)
	}
	return data, fileType, nil
}

func detectFileTypeFromName(filename string) string {
	filename = strings.ToLower(filename)
	switch {
	case strings.HasSuffix(filename, ".pdf"):
		return sourcePDF
	case strings.HasSuffix(filename, ".odt"):
		return sourceODT
	case strings.HasSuffix(filename, ".docx"):
		return sourceDOCX
	case strings.HasSuffix(filename, ".md"), strings.HasSuffix(filename, ".markdown"), strings.HasSuffix(filename, ".txt"):
		return sourceText
	}
	return "unknown"
}

func detectFileType(data []byte) string {
	if len(data) < 4 {
		if utf8.Valid(data) {
			return sourceText
		}
		return "unknown"
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return sourcePDF
	}

	// DOCX and ODT are both zip packages.
	if bytes.HasPrefix(data, []byte("PK")) {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "unknown"
		}
		for _, f := range zr.File {
			if f.Name == "word/document.xml" {
				return sourceDOCX
			}
			if f.Name == "content.xml" {
				return sourceODT
			}
		}
		return "unknown"
	}

	if utf8.Valid(data) {
		return sourceText
	}
	return "unknown"
}

// extractMarkup turns an uploaded source document into markup text.
func extractMarkup(data []byte, fileType string) (string, error) {
	switch fileType {
	case sourceText:
		return string(data), nil
	case sourcePDF:
		return extractPDFMarkup(data)
	case sourceDOCX:
		return extractDOCXMarkup(data)
	case sourceODT:
		return extractODTMarkup(data)
	default:
		return "", fmt.Errorf("%w: source file type %s (supported: md, txt, pdf, docx, odt)", ErrInvalidRequest, fileType)
	}
}
