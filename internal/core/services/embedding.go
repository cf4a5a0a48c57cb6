package services

import (
	"context"
	"fmt"
	"iter"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Embedding defaults.
const (
	DefaultStreamingThreshold = 1000
	DefaultMaxSeqLength       = 512
	DefaultMemoryThreshold    = 0.8

	// charsPerToken approximates the character budget of one model token.
	charsPerToken = 4

	gib = 1 << 30
)

// EmbeddingConfig tunes the embedding generator.
type EmbeddingConfig struct {
	// MemoryThreshold is the used-memory fraction that triggers a
	// collection pass after a batch (default: 0.8).
	MemoryThreshold float64

	// StreamingThreshold is the input count above which batches are
	// streamed (default: 1000).
	StreamingThreshold int

	// MaxSeqLength overrides the model's maximum token length when positive.
	MaxSeqLength int
}

// EmbeddingGenerator converts text into vectors. The model is loaded on
// first use and shared by every caller; batch sizes adapt to available
// memory.
type EmbeddingGenerator struct {
	loader driven.ModelLoader
	probe  driven.MemoryProbe
	cfg    EmbeddingConfig
	gc     func()

	mu    sync.Mutex
	model driven.EmbeddingModel
}

// NewEmbeddingGenerator creates a generator. The probe is optional; without
// it the smallest batch tier is used and the memory guard is disabled.
func NewEmbeddingGenerator(loader driven.ModelLoader, probe driven.MemoryProbe, cfg EmbeddingConfig) *EmbeddingGenerator {
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	if cfg.StreamingThreshold <= 0 {
		cfg.StreamingThreshold = DefaultStreamingThreshold
	}
	return &EmbeddingGenerator{
		loader: loader,
		probe:  probe,
		cfg:    cfg,
		gc:     runtime.GC,
	}
}

// Model returns the loaded model, loading it on the first call. Only a
// successful load is kept; after a failure the next call tries again.
// The load is not cancelled with ctx since its result is shared.
func (g *EmbeddingGenerator) Model(ctx context.Context) (driven.EmbeddingModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model != nil {
		return g.model, nil
	}

	logger.Debug("Loading embedding model")
	m, err := g.loader(context.WithoutCancel(ctx))
	if err != nil {
		return nil, &domain.EmbeddingError{Op: "load", Err: err}
	}
	if m == nil {
		return nil, &domain.EmbeddingError{Op: "load", Err: fmt.Errorf("loader returned no model")}
	}
	logger.Info("Embedding model %s loaded (%d dimensions)", m.ModelName(), m.Dimensions())
	g.model = m
	return m, nil
}

// Dimensions returns the model's vector size.
func (g *EmbeddingGenerator) Dimensions(ctx context.Context) (int, error) {
	m, err := g.Model(ctx)
	if err != nil {
		return 0, err
	}
	return m.Dimensions(), nil
}

// Embed returns the vector for a single text.
func (g *EmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in input order. Inputs larger
// than the streaming threshold are processed one batch at a time.
func (g *EmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for batch, err := range g.EmbedStreaming(ctx, texts) {
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// EmbedStreaming yields vectors one batch at a time. The sequence is
// finite and may be consumed once; a second iteration yields an error.
// Iteration stops at the first error.
func (g *EmbeddingGenerator) EmbedStreaming(ctx context.Context, texts []string) iter.Seq2[[][]float32, error] {
	var consumed atomic.Bool

	return func(yield func([][]float32, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(nil, &domain.EmbeddingError{Op: "stream", Err: fmt.Errorf("sequence already consumed")})
			return
		}

		model, err := g.Model(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		maxChars := g.maxChars(model)
		batchSize := g.BatchSize(ctx, len(texts))
		streaming := len(texts) > g.cfg.StreamingThreshold
		if streaming {
			logger.Debug("Streaming %d texts in batches of %d", len(texts), batchSize)
		}

		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))

			batch := make([]string, 0, end-start)
			for i, text := range texts[start:end] {
				clean, err := Preprocess(text, maxChars)
				if err != nil {
					yield(nil, fmt.Errorf("text %d: %w", start+i, err))
					return
				}
				batch = append(batch, clean)
			}

			vectors, err := model.Embed(ctx, batch)
			if err != nil {
				yield(nil, &domain.EmbeddingError{Op: "embed", Err: err})
				return
			}
			if len(vectors) != len(batch) {
				yield(nil, &domain.EmbeddingError{
					Op:  "embed",
					Err: fmt.Errorf("model returned %d vectors for %d texts", len(vectors), len(batch)),
				})
				return
			}

			if !yield(vectors, nil) {
				return
			}

			if err := g.checkMemory(ctx); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// BatchSize picks a batch size from available memory and input count.
func (g *EmbeddingGenerator) BatchSize(ctx context.Context, n int) int {
	if n <= 0 {
		return 1
	}

	size := 8
	if g.probe != nil {
		if stats, err := g.probe.Stats(ctx); err == nil {
			switch {
			case stats.Available > 8*gib:
				size = 64
			case stats.Available > 4*gib:
				size = 32
			case stats.Available > 2*gib:
				size = 16
			}
		} else {
			logger.Debug("Memory probe failed, using smallest batch: %v", err)
		}
	}

	switch {
	case n > 1000:
		size *= 4
	case n > 100:
		size *= 2
	}

	return min(size, n)
}

// checkMemory triggers a collection when memory use is above the
// threshold and fails if it stays there.
func (g *EmbeddingGenerator) checkMemory(ctx context.Context) error {
	if g.probe == nil {
		return nil
	}
	stats, err := g.probe.Stats(ctx)
	if err != nil || stats.UsedPercent <= g.cfg.MemoryThreshold {
		return nil
	}

	logger.Debug("Memory at %.0f%%, collecting", stats.UsedPercent*100)
	g.gc()

	stats, err = g.probe.Stats(ctx)
	if err != nil || stats.UsedPercent <= g.cfg.MemoryThreshold {
		return nil
	}
	return &domain.EmbeddingError{
		Op:  "batch",
		Err: fmt.Errorf("%w: %.0f%% used", domain.ErrMemoryExhausted, stats.UsedPercent*100),
	}
}

func (g *EmbeddingGenerator) maxChars(model driven.EmbeddingModel) int {
	seq := g.cfg.MaxSeqLength
	if seq <= 0 {
		seq = model.MaxSequenceLength()
	}
	if seq <= 0 {
		seq = DefaultMaxSeqLength
	}
	return seq * charsPerToken
}

// Similarity returns the clamped cosine similarity of two vectors.
func (g *EmbeddingGenerator) Similarity(a, b []float32) float64 {
	return Similarity(a, b)
}

// MostSimilar returns the top k candidates by similarity to query.
func (g *EmbeddingGenerator) MostSimilar(query []float32, candidates [][]float32, k int) []domain.ScoredIndex {
	return MostSimilar(query, candidates, k)
}

// Close releases the model if it was loaded.
func (g *EmbeddingGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.model == nil {
		return nil
	}
	err := g.model.Close()
	g.model = nil
	return err
}

// Preprocess trims text, collapses whitespace runs and truncates it to
// maxChars bytes on a rune boundary. Text that ends up empty is rejected.
func Preprocess(text string, maxChars int) (string, error) {
	clean := strings.Join(strings.Fields(text), " ")
	if maxChars > 0 && len(clean) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = strings.TrimSpace(clean[:cut])
	}
	if clean == "" {
		return "", &domain.ValidationError{Field: "text", Reason: "empty after preprocessing"}
	}
	return clean, nil
}

// Similarity returns the cosine similarity of two vectors clamped to
// [0, 1]. Mismatched or zero vectors score 0.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

// MostSimilar ranks candidates by similarity to query and returns the
// top k. Ties keep candidate order.
func MostSimilar(query []float32, candidates [][]float32, k int) []domain.ScoredIndex {
	if k <= 0 || len(candidates) == 0 {
		return []domain.ScoredIndex{}
	}
	scored := make([]domain.ScoredIndex, len(candidates))
	for i, c := range candidates {
		scored[i] = domain.ScoredIndex{Index: i, Similarity: Similarity(query, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
