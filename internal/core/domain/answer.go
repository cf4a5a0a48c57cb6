package domain

import "time"

// NoAnswerText is returned when retrieval finds nothing relevant.
const NoAnswerText = "I couldn't find any relevant information in the indexed documents to answer this question."

// Answer is the generated response to a question.
type Answer struct {
	Question   string         `json:"question"`
	Text       string         `json:"answer"`
	Sources    []SearchResult `json:"sources"`
	TokensUsed int            `json:"tokens_used,omitempty"`
	Model      string         `json:"model,omitempty"`
}

// IngestResult summarises the ingestion of one document.
type IngestResult struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	ChunkCount int           `json:"chunk_count"`
	Indexed    int           `json:"indexed"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// DocumentSummary is a registry entry for an ingested document.
type DocumentSummary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthReport summarises the state of the retrieval stack.
type HealthReport struct {
	Healthy   bool              `json:"healthy"`
	Backend   ComponentHealth   `json:"backend"`
	Generator *ComponentHealth  `json:"generator,omitempty"`
	Breakers  []BreakerSnapshot `json:"breakers"`
	Index     IndexStats        `json:"index"`
	Cache     CacheStats        `json:"cache"`
}

// CacheStats reports result cache usage.
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}
