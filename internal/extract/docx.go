package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxDOCXPart caps how much of one decompressed archive member is read.
const maxDOCXPart = 64 << 20

// extractDOCX reads word/document.xml from the archive and keeps the text
// runs of each non-empty paragraph, one blank line between paragraphs. The
// title comes from docProps/core.xml when the document sets one.
func extractDOCX(path string, raw []byte) (Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Document{}, fmt.Errorf("open docx: %w", err)
	}

	body, err := readZipPart(zr, "word/document.xml")
	if err != nil {
		return Document{}, fmt.Errorf("read docx body: %w", err)
	}
	paragraphs, err := docxParagraphs(body)
	if err != nil {
		return Document{}, fmt.Errorf("parse docx body: %w", err)
	}
	if len(paragraphs) == 0 {
		return Document{}, fmt.Errorf("docx: %w", ErrNoText)
	}

	title := titleFromFilename(path)
	if core, err := readZipPart(zr, "docProps/core.xml"); err == nil {
		var props struct {
			Title string `xml:"title"`
		}
		if xml.Unmarshal(core, &props) == nil && strings.TrimSpace(props.Title) != "" {
			title = strings.TrimSpace(props.Title)
		}
	}

	return Document{
		Title:  title,
		Text:   strings.Join(paragraphs, "\n\n"),
		Format: FormatDOCX,
	}, nil
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxDOCXPart+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDOCXPart {
		return nil, errors.New("archive member too large")
	}
	return data, nil
}

// docxParagraphs walks the WordprocessingML token stream. Only w:t carries
// text; w:tab and w:br inside a run become whitespace.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
