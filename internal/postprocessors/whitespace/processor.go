// Package whitespace provides a post-processor that trims chunk text and
// drops chunks left empty.
package whitespace

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor trims leading and trailing whitespace from every chunk,
// adjusting offsets, and re-numbers the surviving chunks.
type Processor struct{}

// New creates a whitespace processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "whitespace"
}

// Process trims chunks and removes those that are empty.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		left := strings.TrimLeftFunc(c.Content, unicode.IsSpace)
		trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
		if trimmed == "" {
			continue
		}

		c.StartOffset += len(c.Content) - len(left)
		c.EndOffset = c.StartOffset + len(trimmed)
		c.Content = trimmed
		c.CharCount = utf8.RuneCountInString(trimmed)
		c.WordCount = len(strings.Fields(trimmed))
		c.Index = len(out)
		c.ID = domain.ChunkID(doc.ID, c.Index)
		out = append(out, c)
	}
	return out, nil
}
