// Package local provides an offline embedding model based on feature hashing.
//
// Each text is mapped to word unigrams and character trigrams, hashed into a
// fixed number of buckets and L2-normalised. Texts sharing words or word
// fragments land close together, which is enough for semantic ranking of
// policy-style documents without a model download.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure EmbeddingModel implements the interface.
var _ driven.EmbeddingModel = (*EmbeddingModel)(nil)

// Default configuration values.
const (
	DefaultModel        = "hashing-v1"
	DefaultDimensions   = 768
	DefaultMaxSeqLength = 512

	// trigramWeight scales character trigrams relative to whole words.
	trigramWeight = 0.5
)

// Config holds configuration for the local embedding model.
type Config struct {
	// Dimensions is the number of hash buckets (default: 768).
	Dimensions int

	// MaxSeqLength is the nominal token limit (default: 512).
	MaxSeqLength int
}

// EmbeddingModel is a deterministic feature-hashing embedder.
type EmbeddingModel struct {
	dimensions int
	maxSeq     int
}

// NewEmbeddingModel creates a local embedding model.
func NewEmbeddingModel(cfg Config) *EmbeddingModel {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxSeqLength <= 0 {
		cfg.MaxSeqLength = DefaultMaxSeqLength
	}
	return &EmbeddingModel{dimensions: cfg.Dimensions, maxSeq: cfg.MaxSeqLength}
}

// Embed returns one unit vector per text. Text without any word
// characters maps to the zero vector.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *EmbeddingModel) vector(text string) []float32 {
	acc := make([]float64, m.dimensions)
	for _, word := range Tokenize(text) {
		m.add(acc, "w:"+word, 1)

		padded := []rune("^" + word + "$")
		for i := 0; i+3 <= len(padded); i++ {
			m.add(acc, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	var norm float64
	for _, x := range acc {
		norm += x * x
	}
	vec := make([]float32, m.dimensions)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, x := range acc {
		vec[i] = float32(x / norm)
	}
	return vec
}

// add hashes a feature into a bucket. A second hash bit picks the sign so
// collisions tend to cancel rather than accumulate.
func (m *EmbeddingModel) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(m.dimensions)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a
// letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Dimensions returns the embedding vector size.
func (m *EmbeddingModel) Dimensions() int {
	return m.dimensions
}

// ModelName returns the model identifier.
func (m *EmbeddingModel) ModelName() string {
	return DefaultModel
}

// MaxSequenceLength returns the nominal token limit.
func (m *EmbeddingModel) MaxSequenceLength() int {
	return m.maxSeq
}

// Close releases resources.
func (m *EmbeddingModel) Close() error {
	return nil
}
