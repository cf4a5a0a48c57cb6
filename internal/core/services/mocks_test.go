package services

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/cache"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/resilience"
)

const testDims = 16

// --- Mock implementations ---

// mockEmbeddingModel hashes words into a fixed-size vector so that texts
// sharing words are similar.
type mockEmbeddingModel struct {
	mu      sync.Mutex
	dims    int
	maxSeq  int
	err     error
	short   bool
	batches []int
	closed  bool
}

func newMockEmbeddingModel() *mockEmbeddingModel {
	return &mockEmbeddingModel{dims: testDims, maxSeq: 512}
}

func (m *mockEmbeddingModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, len(texts))
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, hashVector(t, m.dims))
	}
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *mockEmbeddingModel) Dimensions() int        { return m.dims }
func (m *mockEmbeddingModel) ModelName() string      { return "mock-embed" }
func (m *mockEmbeddingModel) MaxSequenceLength() int { return m.maxSeq }
func (m *mockEmbeddingModel) Close() error {
	m.closed = true
	return nil
}

func (m *mockEmbeddingModel) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.batches)
}

func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

func loaderFor(m driven.EmbeddingModel) driven.ModelLoader {
	return func(context.Context) (driven.EmbeddingModel, error) { return m, nil }
}

// mockProbe returns stats in sequence, repeating the last.
type mockProbe struct {
	mu    sync.Mutex
	stats []driven.MemoryStats
	err   error
	calls int
}

func (p *mockProbe) Stats(context.Context) (driven.MemoryStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return driven.MemoryStats{}, p.err
	}
	if len(p.stats) == 0 {
		return driven.MemoryStats{Available: 1 << 30, UsedPercent: 0.5}, nil
	}
	s := p.stats[0]
	if len(p.stats) > 1 {
		p.stats = p.stats[1:]
	}
	return s, nil
}

// mockBackend keeps records in memory. Text scores count matched query
// words; vector scores are cosine similarity.
type mockBackend struct {
	mu        sync.Mutex
	records   map[string]domain.IndexRecord
	order     []string
	err       error
	itemErrs  map[string]error
	pingErr   error
	queries   int
	upserts   int
	deletes   int
	lastQuery driven.BackendQuery
}

func newMockBackend() *mockBackend {
	return &mockBackend{records: make(map[string]domain.IndexRecord)}
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) EnsureSchema(context.Context) error { return b.err }

func (b *mockBackend) Upsert(_ context.Context, records []domain.IndexRecord) ([]error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserts++
	if b.err != nil {
		return nil, b.err
	}
	errs := make([]error, len(records))
	for i, r := range records {
		if err := b.itemErrs[r.ChunkID]; err != nil {
			errs[i] = err
			continue
		}
		if _, ok := b.records[r.ChunkID]; !ok {
			b.order = append(b.order, r.ChunkID)
		}
		b.records[r.ChunkID] = r
	}
	return errs, nil
}

func (b *mockBackend) Query(_ context.Context, q driven.BackendQuery) ([]domain.SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries++
	b.lastQuery = q
	if b.err != nil {
		return nil, b.err
	}

	words := strings.Fields(strings.ToLower(q.Text))
	var results []domain.SearchResult
	for _, id := range b.order {
		r := b.records[id]
		var textScore float64
		lower := strings.ToLower(r.Text)
		for _, w := range words {
			if strings.Contains(lower, w) {
				textScore++
			}
		}
		if len(words) > 0 {
			textScore /= float64(len(words))
		}
		vecScore := Similarity(q.Vector, r.Vector)

		var score float64
		switch q.Mode {
		case domain.SearchModeKeyword:
			score = textScore
		case domain.SearchModeSemantic:
			score = vecScore
		default:
			score = q.VectorWeight*vecScore + q.TextWeight*textScore
		}
		if score <= 0 {
			continue
		}
		results = append(results, domain.SearchResult{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Text:       r.Text,
			Title:      r.Title,
			Score:      score,
			Metadata:   r.Metadata,
		})
	}
	return results, nil
}

func (b *mockBackend) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.err != nil {
		return 0, b.err
	}
	n := 0
	b.order = slices.DeleteFunc(b.order, func(id string) bool {
		if b.records[id].DocumentID == documentID {
			delete(b.records, id)
			n++
			return true
		}
		return false
	})
	return n, nil
}

func (b *mockBackend) Stats(context.Context) (domain.IndexStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs := make(map[string]bool)
	for _, r := range b.records {
		docs[r.DocumentID] = true
	}
	return domain.IndexStats{Records: len(b.records), Documents: len(docs)}, nil
}

func (b *mockBackend) Ping(context.Context) error { return b.pingErr }
func (b *mockBackend) Close() error               { return nil }

func (b *mockBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// mockGenerator returns a canned answer.
type mockGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	pingErr error
	calls   int
	chunks  []domain.SearchResult
}

func (g *mockGenerator) Generate(_ context.Context, _ string, chunks []domain.SearchResult) (*domain.Answer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.chunks = chunks
	if g.err != nil {
		return nil, g.err
	}
	return &domain.Answer{Text: g.text, TokensUsed: 42}, nil
}

func (g *mockGenerator) Name() string               { return "mock-llm" }
func (g *mockGenerator) ModelName() string          { return "mock-model" }
func (g *mockGenerator) Ping(context.Context) error { return g.pingErr }
func (g *mockGenerator) Close() error               { return nil }

// failingDocStore fails saves after delegating everything else.
type failingDocStore struct {
	*memory.DocumentStore
	saveErr error
}

func (s *failingDocStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.DocumentStore.SaveChunks(ctx, chunks)
}

var errBackendDown = errors.New("backend down")

// --- Test fixtures ---

// testPolicies keep retries and breaker recovery fast.
func testPolicies() (domain.RetryPolicy, domain.BreakerPolicy) {
	retry := domain.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2,
	}
	breaker := domain.BreakerPolicy{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	}
	return retry, breaker
}

func newTestExecutor() *resilience.Executor {
	retry, breaker := testPolicies()
	return resilience.NewExecutor(retry, resilience.NewRegistry(breaker))
}

func newTestCache() *cache.Cache[[]domain.SearchResult] {
	return cache.New[[]domain.SearchResult](cache.Options{MaxSize: 100, DefaultTTL: time.Minute})
}

func newTestIndex(backend driven.SearchBackend) *IndexEngine {
	return NewIndexEngine(backend, newTestExecutor(), newTestCache(), IndexConfig{Dimensions: testDims})
}

func newTestEmbedder(model driven.EmbeddingModel) *EmbeddingGenerator {
	return NewEmbeddingGenerator(loaderFor(model), nil, EmbeddingConfig{})
}

func testRecord(chunkID, docID, text string) domain.IndexRecord {
	return domain.IndexRecord{
		ChunkID:    chunkID,
		DocumentID: docID,
		Text:       text,
		Vector:     hashVector(text, testDims),
		Metadata:   domain.RecordMetadata{Filename: docID + ".txt"},
	}
}
