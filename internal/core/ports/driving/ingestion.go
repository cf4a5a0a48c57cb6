package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IngestionService loads, chunks, embeds and indexes documents.
type IngestionService interface {
	// IngestFile ingests a single file from disk.
	IngestFile(ctx context.Context, path string) (*domain.IngestResult, error)

	// IngestBytes ingests in-memory content such as an upload.
	IngestBytes(ctx context.Context, filename string, content []byte, tags []string) (*domain.IngestResult, error)

	// IngestDocument ingests an already-loaded document.
	IngestDocument(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error)

	// IngestDirectory ingests every supported file under dir.
	// Failures are reported per file and never abort the others.
	IngestDirectory(ctx context.Context, dir string, recursive bool) ([]domain.IngestResult, error)

	// DeleteDocument removes a document from the index and the registry.
	DeleteDocument(ctx context.Context, documentID string) (bool, error)

	// ListDocuments returns every ingested document.
	ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error)

	// GetDocument returns an ingested document with its chunks.
	GetDocument(ctx context.Context, documentID string) (*domain.Document, []domain.Chunk, error)

	// SupportedExtensions lists the file types that can be ingested.
	SupportedExtensions() []string
}
