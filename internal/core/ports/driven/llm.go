package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// AnswerGenerator produces an answer from a question and ranked chunks.
// Implementations call a remote language model and are wrapped by the
// resilience layer.
type AnswerGenerator interface {
	// Generate answers the question using the supplied context chunks.
	Generate(ctx context.Context, question string, chunks []domain.SearchResult) (*domain.Answer, error)

	// Name returns the provider name.
	Name() string

	// ModelName returns the model identifier.
	ModelName() string

	// Ping verifies the generator is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
