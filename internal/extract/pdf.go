package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned for a PDF or DOCX file that parses but carries no
// extractable text, such as a scanned PDF without a text layer.
var ErrNoText = errors.New("no extractable text")

// extractPDF reads the text layer page by page. Pages are separated by a
// blank line so the chunker treats them as paragraph boundaries. A page that
// fails to decode is skipped; the document fails only if no page has text.
func extractPDF(path string, raw []byte) (doc Document, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc, err = Document{}, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Document{}, fmt.Errorf("parse pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(normalizeNewlines(text)); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return Document{}, fmt.Errorf("pdf: %w", ErrNoText)
	}

	title := strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())
	if title == "" {
		title = titleFromFilename(path)
	}
	return Document{
		Title:  title,
		Text:   strings.Join(pages, "\n\n"),
		Format: FormatPDF,
	}, nil
}
