// Package extract turns raw document bytes into the plain text that gets
// chunked and indexed, plus a display title.
package extract

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Format identifies how a document was interpreted.
type Format string

const (
	FormatPlain    Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// Document is extracted, index-ready content.
type Document struct {
	Title  string
	Text   string
	Format Format
}

// Extract dispatches on the path's extension. Unknown extensions, including
// source code and config files, are treated as plain text. Text formats whose
// bytes look binary yield a document with a title and no text. An error means
// a PDF or DOCX file could not be parsed.
func Extract(path string, raw []byte) (Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path, raw)
	case ".docx":
		return extractDOCX(path, raw)
	}

	if IsBinary(raw) {
		slog.Debug("binary_document_excluded", slog.String("path", path))
		return Document{Title: filepath.Base(path), Format: FormatPlain}, nil
	}

	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	content := toValidUTF8(raw)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return Document{
			Title:  markdownTitle(content, path),
			Text:   stripMarkdown(content),
			Format: FormatMarkdown,
		}, nil
	case ".html", ".htm", ".xhtml":
		return Document{
			Title:  htmlTitle(content, path),
			Text:   stripHTML(content),
			Format: FormatHTML,
		}, nil
	default:
		return Document{
			Title:  titleFromFilename(path),
			Text:   normalizeNewlines(content),
			Format: FormatPlain,
		}, nil
	}
}

// IsBinary reports whether raw looks like a binary file: a NUL byte in the
// first 8KB, the same heuristic git uses.
func IsBinary(raw []byte) bool {
	head := raw
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}

func toValidUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// titleFromFilename turns "weekly-notes_2024.md" into "weekly notes 2024".
func titleFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
