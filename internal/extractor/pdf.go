// Package extractor turns statement documents into plain text for the
// statement parser.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoTextLayer means the document has no extractable text, typically a scan.
var ErrNoTextLayer = errors.New("document has no text layer")

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether doc starts with the PDF header.
func IsPDF(doc []byte) bool {
	return bytes.HasPrefix(doc, pdfMagic)
}

// PDF reads the text layer of a PDF, one line per text row.
type PDF struct{}

// ExtractText implements internal.TextExtractor.
func (PDF) ExtractText(ctx context.Context, doc []byte) (text string, err error) {
	if !IsPDF(doc) {
		return "", errors.New("not a PDF document")
	}
	// The pdf library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return "", errors.New("PDF has no pages")
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		if lines := pageRows(page); len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
		}
	}

	text = strings.Join(pages, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTextLayer
	}
	return text, nil
}

func pageRows(page pdf.Page) []string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}
	var lines []string
	for _, row := range rows {
		parts := make([]string, 0, len(row.Content))
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
