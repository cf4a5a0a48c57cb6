package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// QueryService provides retrieval and question answering to external actors.
type QueryService interface {
	// Search embeds the question as needed and returns ranked chunks.
	// An empty slice with a nil error means nothing matched.
	Search(ctx context.Context, question string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Ask retrieves context for the question and generates an answer.
	Ask(ctx context.Context, question string, opts domain.SearchOptions) (*domain.Answer, error)

	// Health reports the state of the backend, generator and breakers.
	Health(ctx context.Context) *domain.HealthReport
}
