// Package pdf extracts plain text from PDF documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"pdfrag/src/core/rag"
)

// ErrInvalidPDF is returned when the content cannot be parsed as a PDF.
var ErrInvalidPDF = fmt.Errorf("%w: unreadable pdf", rag.ErrInvalidInput)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of every page in order. Pages without a
// text layer yield empty strings.
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) (pages []string, err error) {
	// The parser panics on some malformed cross reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: %v", ErrInvalidPDF, filename, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPDF, filename, err)
	}

	return extractPages(ctx, filename, r.NumPage(), func(i int) (string, error) {
		page := r.Page(i)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
}

// extractPages collects the text of pages 1..numPages. A page the parser
// cannot decode makes the whole document invalid.
func extractPages(ctx context.Context, filename string, numPages int, text func(i int) (string, error)) ([]string, error) {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: page %d: %w", ErrInvalidPDF, filename, i, err)
		}
		pages = append(pages, t)
	}
	return pages, nil
}
