package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// BackendQuery is a search request issued to a backend.
// Weights only apply to hybrid mode.
type BackendQuery struct {
	Text         string
	Vector       []float32
	Mode         domain.SearchMode
	Limit        int
	MinScore     float64
	VectorWeight float64
	TextWeight   float64
}

// SearchBackend is the hybrid index behind the retrieval engine.
// It supports upsert by id, vector nearest-neighbour search, fuzzy
// full-text search, weighted combination of both and delete by document.
type SearchBackend interface {
	// Name identifies the backend for logging.
	Name() string

	// EnsureSchema creates the backing schema if absent. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Upsert writes records keyed by chunk id.
	// The returned slice is parallel to records; a nil entry means success.
	Upsert(ctx context.Context, records []domain.IndexRecord) ([]error, error)

	// Query returns results ordered by descending score, ties in index order.
	Query(ctx context.Context, q BackendQuery) ([]domain.SearchResult, error)

	// DeleteByDocument removes every record of a document and returns the count.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Stats counts records and distinct documents.
	Stats(ctx context.Context) (domain.IndexStats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
