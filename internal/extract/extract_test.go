package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create docx entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write docx entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextFromBytes_DocxParagraphs(t *testing.T) {
	doc := `<w:document><w:body>` +
		`<w:p><w:r><w:t>Asha Rao</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Backend engineer with Go experience.</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	data := buildDocx(t, doc)

	text, err := ExtractTextFromBytes(context.Background(), data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "resume.docx")
	if err != nil {
		t.Fatalf("extract docx: %v", err)
	}
	if !strings.Contains(text, "Asha Rao") || !strings.Contains(text, "Go experience") {
		t.Fatalf("unexpected text: %q", text)
	}
	if !strings.Contains(text, "\n") {
		t.Fatalf("expected paragraph break in %q", text)
	}
}

func TestExtractTextFromBytes_ZipDocxNormalizes(t *testing.T) {
	data := buildDocx(t, `<w:document><w:body><w:p><w:r><w:t>hello</w:t></w:r></w:p></w:body></w:document>`)

	if _, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "resume.docx"); err != nil {
		t.Fatalf("expected docx to extract from zip mime, got error: %v", err)
	}
}

func TestExtractTextFromBytes_RealZipRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	_, err = ExtractTextFromBytes(context.Background(), buf.Bytes(), "application/zip", "notes.zip")
	if err == nil {
		t.Fatal("expected unsupported mime error for zip")
	}
	if !strings.Contains(err.Error(), "unsupported mime type: application/zip") {
		t.Fatalf("unexpected error: %v", err)
	}
}
