package domain

const unknownDescription = "Unknown"

// SearchMode selects the ranking signal used for retrieval.
type SearchMode string

// Available search modes.
const (
	// SearchModeSemantic ranks by vector similarity only.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeKeyword ranks by fuzzy lexical relevance only.
	SearchModeKeyword SearchMode = "keyword"

	// SearchModeHybrid combines vector and lexical scores additively.
	SearchModeHybrid SearchMode = "hybrid"
)

// Search limits.
const (
	DefaultTopK         = 10
	MaxTopK             = 100
	MaxQueryLength      = 1000
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// RequiresVector returns true if the mode needs a query embedding.
func (m SearchMode) RequiresVector() bool {
	return m == SearchModeSemantic || m == SearchModeHybrid
}

// RequiresText returns true if the mode needs query text.
func (m SearchMode) RequiresText() bool {
	return m == SearchModeKeyword || m == SearchModeHybrid
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeSemantic:
		return "Semantic (vector similarity)"
	case SearchModeKeyword:
		return "Keyword (fuzzy full-text)"
	case SearchModeHybrid:
		return "Hybrid (vector + keyword)"
	default:
		return unknownDescription
	}
}

// SearchQuery is a fully resolved retrieval request.
type SearchQuery struct {
	// Text is the query text used for lexical matching.
	Text string

	// Vector is the query embedding used for similarity matching.
	Vector []float32

	// Mode selects the ranking signal.
	Mode SearchMode

	// TopK is the maximum number of results.
	TopK int

	// MinScore excludes results scoring below it.
	MinScore float64
}

// SearchOptions configures a question-level search.
type SearchOptions struct {
	Mode     SearchMode
	TopK     int
	MinScore float64
}

// SearchResult represents a single ranked hit.
type SearchResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Title      string         `json:"title,omitempty"`
	Score      float64        `json:"score"`
	Page       *int           `json:"page,omitempty"`
	Metadata   RecordMetadata `json:"metadata"`
}

// ScoredIndex pairs a candidate position with its similarity.
type ScoredIndex struct {
	Index      int
	Similarity float64
}
