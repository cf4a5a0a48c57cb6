package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/cache"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/resilience"
)

// DefaultSearchCacheTTL is how long search results stay cached.
const DefaultSearchCacheTTL = 5 * time.Minute

// IndexConfig tunes the retrieval engine.
type IndexConfig struct {
	// Dimensions is the expected vector size. Zero disables the check.
	Dimensions int

	// VectorWeight and TextWeight weight the hybrid score fusion
	// (default: 0.7 and 0.3).
	VectorWeight float64
	TextWeight   float64

	// CacheTTL is the lifetime of cached search results (default: 5m).
	CacheTTL time.Duration
}

// IndexEngine owns the persisted chunk records and executes ranked
// retrieval. Every backend call goes through the resilience executor;
// search results are cached when a cache is supplied.
type IndexEngine struct {
	backend driven.SearchBackend
	exec    *resilience.Executor
	cache   *cache.Cache[[]domain.SearchResult]
	cfg     IndexConfig

	// genMu orders cache stores against invalidation; generation counts
	// index writes.
	genMu      sync.Mutex
	generation uint64
}

// NewIndexEngine creates a retrieval engine. The cache is optional.
func NewIndexEngine(
	backend driven.SearchBackend,
	exec *resilience.Executor,
	results *cache.Cache[[]domain.SearchResult],
	cfg IndexConfig,
) *IndexEngine {
	if cfg.VectorWeight == 0 && cfg.TextWeight == 0 {
		cfg.VectorWeight = domain.DefaultVectorWeight
		cfg.TextWeight = domain.DefaultTextWeight
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultSearchCacheTTL
	}
	return &IndexEngine{
		backend: backend,
		exec:    exec,
		cache:   results,
		cfg:     cfg,
	}
}

// EnsureSchema creates the backing schema if absent. Idempotent.
func (e *IndexEngine) EnsureSchema(ctx context.Context) error {
	err := e.exec.Do(ctx, resilience.ServiceSearchBackend, e.backend.EnsureSchema)
	if err != nil {
		return &domain.SearchBackendError{Op: "ensure schema", Err: err}
	}
	logger.Debug("Index schema ready on %s backend", e.backend.Name())
	return nil
}

// IndexBatch upserts records by chunk id. Invalid records and records the
// backend rejects are reported individually; they never abort the batch.
// A returned error means the backend could not be reached at all.
func (e *IndexEngine) IndexBatch(ctx context.Context, records []domain.IndexRecord) (domain.IndexBatchResult, error) {
	var result domain.IndexBatchResult

	valid := make([]domain.IndexRecord, 0, len(records))
	for _, r := range records {
		if err := e.validateRecord(r); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.RecordError{ChunkID: r.ChunkID, Err: err})
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return result, nil
	}

	itemErrs, err := resilience.Call(ctx, e.exec, resilience.ServiceSearchBackend,
		func(ctx context.Context) ([]error, error) {
			return e.backend.Upsert(ctx, valid)
		})
	if err != nil {
		berr := &domain.SearchBackendError{Op: "index", Err: err}
		for _, r := range valid {
			result.Failed++
			result.Errors = append(result.Errors, domain.RecordError{ChunkID: r.ChunkID, Err: berr})
		}
		return result, berr
	}

	for i, r := range valid {
		if i < len(itemErrs) && itemErrs[i] != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.RecordError{ChunkID: r.ChunkID, Err: itemErrs[i]})
			continue
		}
		result.Indexed++
	}

	if result.Indexed > 0 {
		e.invalidate()
	}
	logger.Debug("Indexed %d records (%d failed)", result.Indexed, result.Failed)
	return result, nil
}

func (e *IndexEngine) validateRecord(r domain.IndexRecord) error {
	switch {
	case strings.TrimSpace(r.ChunkID) == "":
		return &domain.ValidationError{Field: "chunk_id", Reason: "required"}
	case strings.TrimSpace(r.DocumentID) == "":
		return &domain.ValidationError{Field: "document_id", Reason: "required"}
	case len(r.Vector) == 0:
		return &domain.ValidationError{Field: "vector", Reason: "required"}
	case e.cfg.Dimensions > 0 && len(r.Vector) != e.cfg.Dimensions:
		return &domain.ValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("dimension %d, expected %d", len(r.Vector), e.cfg.Dimensions),
		}
	}
	return nil
}

// Search returns results ranked by descending score, excluding those
// below MinScore and truncated to TopK. Identical queries with the same
// vector are served from the cache.
func (e *IndexEngine) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.TopK == 0 {
		q.TopK = domain.DefaultTopK
	}
	if err := e.validateQuery(q); err != nil {
		return nil, err
	}

	if e.cache == nil {
		return e.query(ctx, q)
	}

	key := cache.Key("search", q.Text, q.Mode, q.TopK, q.MinScore, HashVector(q.Vector))
	if results, ok := e.cache.Get(key); ok {
		return slices.Clone(results), nil
	}

	gen := e.currentGeneration()
	results, err := e.query(ctx, q)
	if err != nil {
		return nil, err
	}
	e.storeResults(key, results, gen)
	return slices.Clone(results), nil
}

func (e *IndexEngine) currentGeneration() uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.generation
}

// storeResults caches results unless the index changed since gen was read.
func (e *IndexEngine) storeResults(key string, results []domain.SearchResult, gen uint64) {
	e.genMu.Lock()
	defer e.genMu.Unlock()

	if e.generation != gen {
		logger.Debug("Index changed during search, result not cached")
		return
	}
	if err := e.cache.Set(key, results, e.cfg.CacheTTL); err != nil {
		logger.Warn("Caching search results failed: %v", err)
	}
}

// invalidate records an index write and drops cached results.
func (e *IndexEngine) invalidate() {
	e.genMu.Lock()
	defer e.genMu.Unlock()

	e.generation++
	if e.cache != nil {
		e.cache.Clear()
	}
}

func (e *IndexEngine) query(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	bq := driven.BackendQuery{
		Text:         q.Text,
		Vector:       q.Vector,
		Mode:         q.Mode,
		Limit:        q.TopK,
		MinScore:     q.MinScore,
		VectorWeight: e.cfg.VectorWeight,
		TextWeight:   e.cfg.TextWeight,
	}

	hits, err := resilience.Call(ctx, e.exec, resilience.ServiceSearchBackend,
		func(ctx context.Context) ([]domain.SearchResult, error) {
			return e.backend.Query(ctx, bq)
		})
	if err != nil {
		return nil, &domain.SearchBackendError{Op: "search", Err: err}
	}

	return rankResults(hits, q.MinScore, q.TopK), nil
}

// rankResults filters by minScore, orders by descending score keeping
// backend order for ties, and truncates to topK.
func rankResults(hits []domain.SearchResult, minScore float64, topK int) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minScore {
			results = append(results, h)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (e *IndexEngine) validateQuery(q domain.SearchQuery) error {
	switch {
	case !q.Mode.IsValid():
		return &domain.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown search mode %q", q.Mode)}
	case q.TopK < 1 || q.TopK > domain.MaxTopK:
		return &domain.ValidationError{Field: "top_k", Reason: fmt.Sprintf("must be between 1 and %d", domain.MaxTopK)}
	case q.MinScore < 0 || math.IsNaN(q.MinScore):
		return &domain.ValidationError{Field: "min_score", Reason: "must not be negative"}
	case len(q.Text) > domain.MaxQueryLength:
		return &domain.ValidationError{Field: "query", Reason: fmt.Sprintf("longer than %d characters", domain.MaxQueryLength)}
	case q.Mode.RequiresText() && q.Text == "":
		return &domain.ValidationError{Field: "query", Reason: "required for " + q.Mode.String() + " search"}
	case q.Mode.RequiresVector() && len(q.Vector) == 0:
		return &domain.ValidationError{Field: "vector", Reason: "required for " + q.Mode.String() + " search"}
	case q.Mode.RequiresVector() && e.cfg.Dimensions > 0 && len(q.Vector) != e.cfg.Dimensions:
		return &domain.ValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("dimension %d, expected %d", len(q.Vector), e.cfg.Dimensions),
		}
	}
	return nil
}

// DeleteDocument removes every record of a document. The boolean reports
// whether the backend accepted the deletion.
func (e *IndexEngine) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	if strings.TrimSpace(documentID) == "" {
		return false, &domain.ValidationError{Field: "document_id", Reason: "required"}
	}

	n, err := resilience.Call(ctx, e.exec, resilience.ServiceSearchBackend,
		func(ctx context.Context) (int, error) {
			return e.backend.DeleteByDocument(ctx, documentID)
		})
	if err != nil {
		return false, &domain.SearchBackendError{Op: "delete", Err: err}
	}

	e.invalidate()
	logger.Debug("Deleted %d records for document %s", n, documentID)
	return true, nil
}

// Stats counts the records and documents in the index.
func (e *IndexEngine) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats, err := e.backend.Stats(ctx)
	if err != nil {
		return domain.IndexStats{}, &domain.SearchBackendError{Op: "stats", Err: err}
	}
	return stats, nil
}

// Ping checks the backend directly, bypassing the breaker.
func (e *IndexEngine) Ping(ctx context.Context) error {
	if err := e.backend.Ping(ctx); err != nil {
		return &domain.SearchBackendError{Op: "ping", Err: err}
	}
	return nil
}

// BackendName returns the name of the backing search backend.
func (e *IndexEngine) BackendName() string {
	return e.backend.Name()
}

// CacheStats reports result cache usage. It is zero without a cache.
func (e *IndexEngine) CacheStats() domain.CacheStats {
	if e.cache == nil {
		return domain.CacheStats{}
	}
	return e.cache.Stats()
}

// PurgeExpiredResults drops expired cached searches and returns how many
// were removed.
func (e *IndexEngine) PurgeExpiredResults() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.CleanupExpired()
}

// HashVector returns a stable digest of a vector for cache keys.
func HashVector(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	h := sha256.New()
	buf := make([]byte, 4)
	for _, f := range v {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
