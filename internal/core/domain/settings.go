package domain

import "time"

// AIProvider identifies a model provider for embeddings or answer generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderLocal is the in-process hashing embedder. It needs no network.
	AIProviderLocal AIProvider = "local"

	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderNone disables the answer generator.
	AIProviderNone AIProvider = "none"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderLocal, AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderNone:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderLocal:
		return "Local (feature hashing, offline)"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderNone:
		return "Disabled"
	default:
		return unknownDescription
	}
}

// IndexBackend selects the search backend implementation.
type IndexBackend string

// Available index backends.
const (
	IndexBackendBleve    IndexBackend = "bleve"
	IndexBackendPostgres IndexBackend = "postgres"
)

// ChunkingSettings configures the text chunker.
type ChunkingSettings struct {
	Size    int `validate:"gt=0"`
	Overlap int `validate:"gte=0,ltfield=Size"`
}

// EmbeddingSettings configures the embedding model.
type EmbeddingSettings struct {
	Provider        AIProvider `validate:"oneof=local ollama openai"`
	Model           string     `validate:"required"`
	Dimensions      int        `validate:"gt=0"`
	MaxSeqLength    int        `validate:"gt=0"`
	BaseURL         string     `validate:"omitempty,url"`
	APIKey          string
	MemoryThreshold float64 `validate:"gt=0,lte=1"`
}

// IndexSettings configures the search backend.
type IndexSettings struct {
	Backend IndexBackend `validate:"oneof=bleve postgres"`
	Name    string       `validate:"required"`
	Path    string
	DSN     string `validate:"required_if=Backend postgres"`
}

// SearchSettings configures query defaults and score fusion.
type SearchSettings struct {
	Mode         SearchMode `validate:"oneof=semantic keyword hybrid"`
	TopK         int        `validate:"gt=0,lte=100"`
	MinScore     float64    `validate:"gte=0"`
	VectorWeight float64    `validate:"gte=0,lte=1"`
	TextWeight   float64    `validate:"gte=0,lte=1"`
	CacheTTL     time.Duration
}

// CacheSettings configures the result cache.
type CacheSettings struct {
	MaxSize    int           `validate:"gt=0"`
	DefaultTTL time.Duration `validate:"gt=0"`
}

// LLMSettings configures the answer generator.
type LLMSettings struct {
	Provider         AIProvider `validate:"oneof=openai ollama anthropic none"`
	Model            string
	BaseURL          string `validate:"omitempty,url"`
	APIKey           string
	MaxContextTokens int `validate:"gt=0"`
}

// IsConfigured returns true if an answer generator can be built.
func (l LLMSettings) IsConfigured() bool {
	if l.Provider == AIProviderNone || !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr string `validate:"required"`
}

// IngestionSettings configures the ingestion orchestrator.
type IngestionSettings struct {
	Workers int `validate:"gt=0"`
}

// Config holds every recognised configuration option.
type Config struct {
	Chunking   ChunkingSettings
	Embedding  EmbeddingSettings
	Index      IndexSettings
	Search     SearchSettings
	Cache      CacheSettings
	RateLimits map[EndpointClass]RateLimit `validate:"dive"`
	Breaker    BreakerPolicy
	Retry      RetryPolicy
	LLM        LLMSettings
	Server     ServerSettings
	Ingestion  IngestionSettings
	DataDir    string
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Chunking: ChunkingSettings{Size: 1000, Overlap: 200},
		Embedding: EmbeddingSettings{
			Provider:        AIProviderLocal,
			Model:           "hashing-v1",
			Dimensions:      768,
			MaxSeqLength:    512,
			MemoryThreshold: 0.8,
		},
		Index: IndexSettings{
			Backend: IndexBackendBleve,
			Name:    "policy_documents",
		},
		Search: SearchSettings{
			Mode:         SearchModeHybrid,
			TopK:         DefaultTopK,
			VectorWeight: DefaultVectorWeight,
			TextWeight:   DefaultTextWeight,
			CacheTTL:     5 * time.Minute,
		},
		Cache: CacheSettings{
			MaxSize:    1000,
			DefaultTTL: time.Hour,
		},
		RateLimits: DefaultRateLimits(),
		Breaker:    DefaultBreakerPolicy(),
		Retry:      DefaultRetryPolicy(),
		LLM: LLMSettings{
			Provider:         AIProviderNone,
			MaxContextTokens: 3000,
		},
		Server:    ServerSettings{Addr: ":8080"},
		Ingestion: IngestionSettings{Workers: 4},
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderLocal:  "hashing-v1",
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the pipeline configuration for the chunking settings.
func PipelineConfigFor(c ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "whitespace"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": c.Size,
				"overlap":    c.Overlap,
			},
		},
	}
}
