package loaders

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/loaders/docx"
	"github.com/custodia-labs/sercha-rag/internal/loaders/html"
	"github.com/custodia-labs/sercha-rag/internal/loaders/markdown"
	"github.com/custodia-labs/sercha-rag/internal/loaders/plaintext"
)

// Registry selects a loader by file extension.
type Registry struct {
	byExt map[string]driven.DocumentLoader
}

// NewRegistry creates a registry holding the given loaders.
// Later loaders win when extensions overlap.
func NewRegistry(loaders ...driven.DocumentLoader) *Registry {
	r := &Registry{byExt: make(map[string]driven.DocumentLoader)}
	for _, l := range loaders {
		r.Register(l)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in loader.
func DefaultRegistry() *Registry {
	return NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		docx.New(),
	)
}

// Register adds a loader for each of its extensions.
func (r *Registry) Register(l driven.DocumentLoader) {
	for _, ext := range l.Extensions() {
		r.byExt[strings.ToLower(ext)] = l
	}
}

// For returns the loader for filename's extension.
func (r *Registry) For(filename string) (driven.DocumentLoader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if l, ok := r.byExt[ext]; ok {
		return l, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
}

// Supports reports whether a loader handles filename.
func (r *Registry) Supports(filename string) bool {
	_, err := r.For(filename)
	return err == nil
}

// Extensions lists every registered extension in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
