// Package pdf implements the domain.TextExtractor port with a native
// PDF text extractor. Non-PDF uploads fall through as plain text.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// Extractor extracts plain text from uploaded CV files.
type Extractor struct{}

// New constructs an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract reads the upload and returns sanitized plain text. PDF bytes
// go through the native extractor page by page; text uploads are passed
// through. Empty output is an extraction failure.
func (e *Extractor) Extract(ctx domain.Context, filename string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("op=pdf.Extract read: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload %s", domain.ErrInvalidArgument, filename)
	}

	mt := mimetype.Detect(data)
	var text string
	switch {
	case mt.Is("application/pdf"):
		text, err = extractPDF(ctx, data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, filename, err)
		}
	case strings.HasPrefix(mt.String(), "text/"):
		text = string(data)
	default:
		return "", fmt.Errorf("%w: unsupported type %s for %s", domain.ErrInvalidArgument, mt.String(), filename)
	}

	text = textx.SanitizeText(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text extracted from %s", domain.ErrExtraction, filename)
	}
	return text, nil
}

func extractPDF(ctx domain.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	var b strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			slog.Debug("pdf page extraction failed", slog.Int("page", i), slog.Any("error", err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
