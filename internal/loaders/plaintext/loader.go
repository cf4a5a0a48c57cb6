package plaintext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// pageBreak separates pages in paginated text exports.
const pageBreak = "\f"

// Loader handles plain text documents.
type Loader struct {
	now func() time.Time
}

// New creates a new plain text loader.
func New() *Loader {
	return &Loader{now: time.Now}
}

// Extensions returns the file extensions this loader handles.
func (l *Loader) Extensions() []string {
	return []string{".txt", ".text", ".log", ".csv"}
}

// Load reads a text file from disk.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ProcessingError{DocumentID: filepath.Base(path), Stage: "load", Err: err}
	}
	return l.LoadBytes(ctx, filepath.Base(path), content)
}

// LoadBytes builds a document from text content. Form feeds split pages;
// each page becomes one element with its page number.
func (l *Loader) LoadBytes(_ context.Context, filename string, content []byte) (*domain.Document, error) {
	if !utf8.Valid(content) {
		return nil, &domain.ProcessingError{
			DocumentID: filename,
			Stage:      "load",
			Err:        fmt.Errorf("%w: content is not valid UTF-8", domain.ErrUnsupportedFormat),
		}
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	pages := strings.Split(text, pageBreak)

	elements := make([]domain.TextElement, 0, len(pages))
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		el := domain.TextElement{Content: page}
		if len(pages) > 1 {
			el.Page = domain.IntPtr(i + 1)
		}
		elements = append(elements, el)
	}

	meta := domain.DocumentMetadata{MIMEType: "text/plain"}
	if len(pages) > 1 {
		meta.PageCount = len(pages)
	}
	return domain.NewDocument(filename, content, elements, meta, l.now()), nil
}
