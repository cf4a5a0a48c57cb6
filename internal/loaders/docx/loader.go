package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// mimeType is the DOCX content type.
const mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Loader handles DOCX documents. Each non-empty paragraph becomes an element.
type Loader struct {
	now func() time.Time
}

// New creates a new DOCX loader.
func New() *Loader {
	return &Loader{now: time.Now}
}

// Extensions returns the file extensions this loader handles.
func (l *Loader) Extensions() []string {
	return []string{".docx"}
}

// Load reads a DOCX file from disk.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ProcessingError{DocumentID: filepath.Base(path), Stage: "load", Err: err}
	}
	return l.LoadBytes(ctx, filepath.Base(path), content)
}

// LoadBytes extracts paragraphs and core properties from a DOCX archive.
func (l *Loader) LoadBytes(_ context.Context, filename string, content []byte) (*domain.Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, loadError(filename, fmt.Errorf("%w: not a docx archive: %w", domain.ErrUnsupportedFormat, err))
	}

	paragraphs, err := readParagraphs(reader)
	if err != nil {
		return nil, loadError(filename, err)
	}

	elements := make([]domain.TextElement, 0, len(paragraphs))
	for _, p := range paragraphs {
		elements = append(elements, domain.TextElement{Content: p})
	}

	core := readCore(reader)
	meta := domain.DocumentMetadata{
		Title:    strings.TrimSpace(core.Title),
		Author:   strings.TrimSpace(core.Creator),
		MIMEType: mimeType,
	}
	return domain.NewDocument(filename, content, elements, meta, l.now()), nil
}

func loadError(filename string, err error) error {
	return &domain.ProcessingError{DocumentID: filename, Stage: "load", Err: err}
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

// readParagraphs returns the non-empty paragraphs of word/document.xml.
func readParagraphs(reader *zip.Reader) ([]string, error) {
	data, err := readEntry(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: missing word/document.xml", domain.ErrUnsupportedFormat)
	}

	var doc documentXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	var paragraphs []string
	for _, para := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return paragraphs, nil
}

// readCore parses docProps/core.xml. Missing or invalid properties are empty.
func readCore(reader *zip.Reader) coreXML {
	var core coreXML
	data, err := readEntry(reader, "docProps/core.xml")
	if err != nil || data == nil {
		return core
	}
	_ = xml.Unmarshal(data, &core)
	return core
}

// readEntry returns the named archive entry, or nil if it is absent.
func readEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}
