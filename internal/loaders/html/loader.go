package html

import (
	"context"
	"html"
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

// Loader handles HTML documents.
type Loader struct {
	now func() time.Time
}

// New creates a new HTML loader.
func New() *Loader {
	return &Loader{now: time.Now}
}

// Extensions returns the file extensions this loader handles.
func (l *Loader) Extensions() []string {
	return []string{".html", ".htm"}
}

// Load reads an HTML file from disk.
func (l *Loader) Load(ctx context.Context, path string) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ProcessingError{DocumentID: filepath.Base(path), Stage: "load", Err: err}
	}
	return l.LoadBytes(ctx, filepath.Base(path), content)
}

// LoadBytes builds a document from HTML with tags stripped.
// Blank-line separated blocks become elements.
func (l *Loader) LoadBytes(_ context.Context, filename string, content []byte) (*domain.Document, error) {
	raw := string(content)

	var elements []domain.TextElement
	for _, block := range strings.Split(stripHTML(raw), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			elements = append(elements, domain.TextElement{Content: block})
		}
	}

	meta := domain.DocumentMetadata{
		Title:    extractTitle(raw),
		Author:   extractMeta(raw, "author"),
		MIMEType: "text/html",
	}
	return domain.NewDocument(filename, content, elements, meta, l.now()), nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaTag           = regexp.MustCompile(`(?is)<meta\s+name="([^"]+)"\s+content="([^"]*)"`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the decoded <title>, or "" if there is none.
func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(matches[1]))
	}
	return ""
}

// extractMeta returns the content of the named <meta> tag.
func extractMeta(content, name string) string {
	for _, m := range metaTag.FindAllStringSubmatch(content, -1) {
		if strings.EqualFold(m[1], name) {
			return strings.TrimSpace(html.UnescapeString(m[2]))
		}
	}
	return ""
}

// stripHTML removes tags and returns readable text. Block elements end
// paragraphs; paragraphs are separated by a blank line.
func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = openBlockElements.ReplaceAllString(content, "\n\n")
	content = blockElements.ReplaceAllString(content, "\n\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
