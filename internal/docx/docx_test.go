package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

const body = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:t>Jane Doe</w:t></w:r></w:p>` +
	`<w:p w:rsidR="00AB"/>` +
	`<w:p><w:r><w:t>Work Experience</w:t></w:r></w:p>` +
	`<w:p w:rsidR="00CD"><w:r><w:t xml:space="preserve">Architect, Fort Meyer </w:t></w:r><w:r><w:tab/><w:t>Beach, USA 2023 &amp; more</w:t></w:r></w:p>` +
	`<w:sectPr/></w:body></w:document>`

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<Types/>`,
		documentPart:          documentXML,
	} {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestText(t *testing.T) {
	doc, err := Open(buildDocx(t, body))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := "Jane Doe\n\nWork Experience\nArchitect, Fort Meyer Beach, USA 2023 & more"
	if got := doc.Text(); got != want {
		t.Fatalf("unexpected text:\n got: %q\nwant: %q", got, want)
	}
}

func TestInsertBefore(t *testing.T) {
	doc, err := Open(buildDocx(t, body))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if !doc.InsertBefore("Fort Meyer Beach, USA 2023", "Lead, Austin <TX>, USA 2024", "Led the team.\nShipped it.") {
		t.Fatalf("expected insertion to succeed")
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}

	reopened, err := Open(data)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	paragraphs := reopened.Paragraphs()
	want := []string{
		"Jane Doe",
		"",
		"Work Experience",
		"Lead, Austin <TX>, USA 2024",
		"Led the team.",
		"Shipped it.",
		"",
		"Architect, Fort Meyer Beach, USA 2023 & more",
	}
	if len(paragraphs) != len(want) {
		t.Fatalf("unexpected paragraphs: %q", paragraphs)
	}
	for i := range want {
		if paragraphs[i] != want[i] {
			t.Fatalf("paragraph %d: got %q want %q", i, paragraphs[i], want[i])
		}
	}

	if !strings.Contains(reopened.xml, "<w:rPr><w:b/></w:rPr><w:t xml:space=\"preserve\">Lead, Austin &lt;TX&gt;, USA 2024") {
		t.Fatalf("expected bold escaped title in document xml")
	}
	if len(reopened.parts) != 2 {
		t.Fatalf("expected all package parts to be preserved, got %d", len(reopened.parts))
	}
}

func TestInsertBeforeMissingAnchor(t *testing.T) {
	doc, err := Open(buildDocx(t, body))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	before := doc.xml

	if doc.InsertBefore("Not in the document at all", "t", "b") {
		t.Fatalf("expected insertion to fail")
	}
	if doc.InsertBefore("  ", "t", "b") {
		t.Fatalf("expected empty anchor to be rejected")
	}
	if doc.xml != before {
		t.Fatalf("document must stay unchanged")
	}
}

func TestOpenRejectsNonDocx(t *testing.T) {
	if _, err := Open([]byte("plain text")); !errors.Is(err, ErrNotDocx) {
		t.Fatalf("expected ErrNotDocx, got %v", err)
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	if _, err := Open(buf.Bytes()); !errors.Is(err, ErrNotDocx) {
		t.Fatalf("expected ErrNotDocx for zip without document part, got %v", err)
	}
}
