package driven

import "context"

// EmbeddingModel generates vector embeddings for text.
// Implementations must return exactly one vector per input, in input order.
type EmbeddingModel interface {
	// Embed generates embeddings for multiple texts in one call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// MaxSequenceLength returns the model's maximum input length in tokens.
	MaxSequenceLength() int

	// Close releases resources.
	Close() error
}

// ModelLoader instantiates an embedding model. It is called at most once.
type ModelLoader func(ctx context.Context) (EmbeddingModel, error)

// MemoryStats is a snapshot of system memory.
type MemoryStats struct {
	// Total is the physical memory in bytes.
	Total uint64

	// Available is the memory available for new allocations in bytes.
	Available uint64

	// UsedPercent is the used fraction in [0, 1].
	UsedPercent float64
}

// MemoryProbe reports live system memory.
type MemoryProbe interface {
	Stats(ctx context.Context) (MemoryStats, error)
}
