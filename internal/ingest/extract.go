package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnsupportedType marks a file extension no extractor handles. The API
// surfaces it as an informational message, not a server error.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extracted is the text and any structured tables pulled from one document.
type Extracted struct {
	Text   string
	Tables []models.StructuredTable
}

// Extractor extracts text and tables from uploaded document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractBytes extracts content based on the file extension (with leading
// dot). Supported: .pdf, .docx, .xlsx, .txt, .md. Anything else returns
// ErrUnsupportedType.
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Extracted, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		text, err := extractPDF(content)
		if err != nil {
			return nil, err
		}
		return &Extracted{Text: text}, nil
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return &Extracted{Text: text}, nil
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md":
		return &Extracted{Text: extractPlain(content)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

// wtTag matches <w:t>text</w:t> with any attributes; DOCX stores body text in
// these OOXML run nodes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
		}
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: word/document.xml not found")
	}
	parts := wtTag.FindAllStringSubmatch(string(docXML), -1)
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

// extractExcel returns each sheet with data as a StructuredTable (first row is
// the header) and a tab-separated text rendering for plain retrieval.
func extractExcel(content []byte) (*Extracted, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	out := &Extracted{}
	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		if t, ok := NewStructuredTable(sheet, rows); ok {
			out.Tables = append(out.Tables, t)
		}
	}
	out.Text = strings.TrimSpace(buf.String())
	return out, nil
}

func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}
