package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DocumentLoader extracts ordered text elements and metadata from a file.
type DocumentLoader interface {
	// Extensions returns the lower-case file extensions handled, including the dot.
	Extensions() []string

	// Load reads the file at path into a Document.
	Load(ctx context.Context, path string) (*domain.Document, error)

	// LoadBytes builds a Document from in-memory content, such as an upload.
	LoadBytes(ctx context.Context, filename string, content []byte) (*domain.Document, error)
}
