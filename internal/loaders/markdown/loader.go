package markdown

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// Loader handles Markdown documents. Each heading starts a new element.
type Loader struct {
	now func() time.Time
}

// New creates a new Markdown loader.
func New() *Loader {
	return &Loader{now: time.Now}
}

// Extensions returns the file extensions this loader handles.
func (l *Loader) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Load reads a Markdown file from disk.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ProcessingError{DocumentID: filepath.Base(path), Stage: "load", Err: err}
	}
	return l.LoadBytes(ctx, filepath.Base(path), content)
}

// LoadBytes builds a document from Markdown content with formatting stripped.
func (l *Loader) LoadBytes(_ context.Context, filename string, content []byte) (*domain.Document, error) {
	raw := strings.ReplaceAll(string(content), "\r\n", "\n")

	var elements []domain.TextElement
	for _, section := range splitSections(raw) {
		text := stripMarkdown(section)
		if text != "" {
			elements = append(elements, domain.TextElement{Content: text})
		}
	}

	meta := domain.DocumentMetadata{
		Title:    extractTitle(raw),
		MIMEType: "text/markdown",
	}
	return domain.NewDocument(filename, content, elements, meta, l.now()), nil
}

// Pre-compiled regular expressions for Markdown stripping.
var (
	codeFence    = regexp.MustCompile("(?s)```[^`]*```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquote   = regexp.MustCompile(`(?m)^>\s*`)
	hr           = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers  = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedList = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	emphasis     = regexp.MustCompile(`(\*\*|__|\*)`)
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
	headingLine  = regexp.MustCompile(`^#{1,6}\s+`)
)

// splitSections splits content before every heading outside code fences.
func splitSections(content string) []string {
	var (
		sections []string
		current  strings.Builder
		inFence  bool
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && headingLine.MatchString(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// extractTitle returns the first H1 heading, or "" if there is none.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// stripMarkdown removes common Markdown formatting and keeps the text.
func stripMarkdown(content string) string {
	content = codeFence.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")
	content = blockquote.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "")
	content = newlineRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
