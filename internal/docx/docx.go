// Package docx reads and edits the paragraph text of a Word document in place.
// Only word/document.xml is touched; every other part of the package is copied as is.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const documentPart = "word/document.xml"

var (
	ErrNotDocx = errors.New("not a word document")

	paragraphPattern = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*?)?(?:/>|>.*?</w:p>)`)
	textPattern      = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
)

type part struct {
	header zip.FileHeader
	data   []byte
}

type Document struct {
	parts    []part
	document int
	xml      string
}

// Open parses a .docx file held in memory.
func Open(data []byte) (*Document, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	doc := &Document{document: -1}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		if f.Name == documentPart {
			doc.document = len(doc.parts)
			doc.xml = string(content)
		}
		doc.parts = append(doc.parts, part{header: f.FileHeader, data: content})
	}

	if doc.document < 0 {
		return nil, fmt.Errorf("%w: %s is missing", ErrNotDocx, documentPart)
	}
	return doc, nil
}

// Paragraphs returns the plain text of every paragraph in document order.
func (d *Document) Paragraphs() []string {
	matches := paragraphPattern.FindAllString(d.xml, -1)
	out := make([]string, 0, len(matches))
	for _, p := range matches {
		out = append(out, paragraphText(p))
	}
	return out
}

// Text is the paragraph text joined by newlines.
func (d *Document) Text() string {
	return strings.Join(d.Paragraphs(), "\n")
}

// InsertBefore places a bold title paragraph followed by the body paragraphs right before the
// first paragraph whose text contains anchor. It reports false and leaves the document
// untouched when no paragraph contains the anchor.
func (d *Document) InsertBefore(anchor, title, body string) bool {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" {
		return false
	}

	for _, loc := range paragraphPattern.FindAllStringIndex(d.xml, -1) {
		if !strings.Contains(paragraphText(d.xml[loc[0]:loc[1]]), anchor) {
			continue
		}

		var b strings.Builder
		b.WriteString(d.xml[:loc[0]])
		writeParagraph(&b, title, true)
		for _, line := range strings.Split(body, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			writeParagraph(&b, line, false)
		}
		writeParagraph(&b, "", false)
		b.WriteString(d.xml[loc[0]:])

		d.xml = b.String()
		return true
	}

	return false
}

// Bytes re-packs the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for i, p := range d.parts {
		data := p.data
		if i == d.document {
			data = []byte(d.xml)
		}

		header := p.header
		header.CompressedSize64 = 0
		header.UncompressedSize64 = 0
		header.CRC32 = 0
		fw, err := w.CreateHeader(&header)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", header.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("write %s: %w", header.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func paragraphText(p string) string {
	var b strings.Builder
	for _, m := range textPattern.FindAllStringSubmatch(p, -1) {
		b.WriteString(html.UnescapeString(m[1]))
	}
	return b.String()
}

func writeParagraph(b *strings.Builder, text string, bold bool) {
	b.WriteString("<w:p>")
	if text != "" {
		b.WriteString("<w:r>")
		if bold {
			b.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(b, []byte(text))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}
