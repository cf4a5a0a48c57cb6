package bleve

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	blevesearch "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Backend implements the interface.
var _ driven.SearchBackend = (*Backend)(nil)

// DefaultName is the index name used when none is configured.
const DefaultName = "policy_documents"

// scanPageSize bounds each page when loading stored vectors.
const scanPageSize = 1000

// Config configures the bleve backend.
type Config struct {
	// Path is the directory holding the index. Empty keeps it in memory.
	Path string

	// Name is the index name (default: policy_documents).
	Name string
}

// entry is the in-process copy of a record's vector.
type entry struct {
	documentID string
	vector     []float32
}

// Backend is a driven.SearchBackend backed by bleve.
type Backend struct {
	index blevesearch.Index
	name  string

	mu      sync.RWMutex
	entries map[string]entry
}

// New opens the index described by cfg, creating it when absent.
func New(cfg Config) (*Backend, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	idx, err := open(cfg)
	if err != nil {
		return nil, err
	}

	b := &Backend{index: idx, name: cfg.Name, entries: make(map[string]entry)}
	if err := b.loadVectors(context.Background()); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return b, nil
}

// NewMemOnly creates an in-memory backend.
func NewMemOnly() (*Backend, error) {
	return New(Config{})
}

func open(cfg Config) (blevesearch.Index, error) {
	if cfg.Path == "" {
		idx, err := blevesearch.NewMemOnly(newIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return idx, nil
	}

	if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	path := filepath.Join(cfg.Path, cfg.Name+".bleve")

	idx, err := blevesearch.Open(path)
	if errors.Is(err, blevesearch.ErrorIndexPathDoesNotExist) {
		logger.Debug("Creating bleve index at %s", path)
		idx, err = blevesearch.New(path, newIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return idx, nil
}

// loadVectors reads every stored vector into memory.
func (b *Backend) loadVectors(ctx context.Context) error {
	entries := make(map[string]entry)
	for from := 0; ; from += scanPageSize {
		req := blevesearch.NewSearchRequestOptions(blevesearch.NewMatchAllQuery(), scanPageSize, from, false)
		req.Fields = []string{fieldDocumentID, fieldVector}
		req.SortBy([]string{"_id"})

		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("load vectors: %w", err)
		}
		for _, hit := range res.Hits {
			vec, err := decodeVector(stringField(hit, fieldVector))
			if err != nil {
				return fmt.Errorf("load vector %s: %w", hit.ID, err)
			}
			entries[hit.ID] = entry{documentID: stringField(hit, fieldDocumentID), vector: vec}
		}
		if len(res.Hits) < scanPageSize {
			break
		}
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	return nil
}

// Name identifies the backend.
func (b *Backend) Name() string {
	return "bleve"
}

// EnsureSchema verifies the index is usable. The mapping is fixed when
// the index is created, so this is idempotent.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if _, err := b.index.DocCount(); err != nil {
		return fmt.Errorf("index %s: %w", b.name, err)
	}
	return ctx.Err()
}

// Upsert writes records keyed by chunk id in one bleve batch.
func (b *Backend) Upsert(ctx context.Context, records []domain.IndexRecord) ([]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	errs := make([]error, len(records))
	batch := b.index.NewBatch()
	staged := make(map[string]entry, len(records))

	for i, r := range records {
		if err := batch.Index(r.ChunkID, toDocument(r)); err != nil {
			errs[i] = err
			continue
		}
		staged[r.ChunkID] = entry{documentID: r.DocumentID, vector: r.Vector}
	}

	if err := b.index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index batch: %w", err)
	}

	b.mu.Lock()
	for id, e := range staged {
		b.entries[id] = e
	}
	b.mu.Unlock()
	return errs, nil
}

func toDocument(r domain.IndexRecord) map[string]any {
	doc := map[string]any{
		fieldChunkID:     r.ChunkID,
		fieldDocumentID:  r.DocumentID,
		fieldText:        r.Text,
		fieldTextExact:   r.Text,
		fieldTitle:       r.Title,
		fieldVector:      encodeVector(r.Vector),
		fieldFilename:    r.Metadata.Filename,
		fieldChunkIndex:  r.Metadata.ChunkIndex,
		fieldStartOffset: r.Metadata.StartOffset,
		fieldEndOffset:   r.Metadata.EndOffset,
		fieldWordCount:   r.Metadata.WordCount,
		fieldCharCount:   r.Metadata.CharCount,
		fieldCreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		fieldUpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.Metadata.Page != nil {
		doc[fieldPage] = *r.Metadata.Page
	}
	if r.Metadata.Author != "" {
		doc[fieldAuthor] = r.Metadata.Author
	}
	if len(r.Metadata.Tags) > 0 {
		doc[fieldTags] = r.Metadata.Tags
	}
	return doc
}

// Query ranks records for q. See the package documentation for scoring.
func (b *Backend) Query(ctx context.Context, q driven.BackendQuery) ([]domain.SearchResult, error) {
	if q.Limit <= 0 {
		return []domain.SearchResult{}, nil
	}

	switch q.Mode {
	case domain.SearchModeKeyword:
		return b.keyword(ctx, q)
	case domain.SearchModeSemantic:
		return b.fetch(ctx, b.rank(b.vectorScores(q.Vector), q.MinScore, q.Limit))
	case domain.SearchModeHybrid:
		return b.hybrid(ctx, q)
	default:
		return nil, fmt.Errorf("unsupported search mode %q", q.Mode)
	}
}

func (b *Backend) keyword(ctx context.Context, q driven.BackendQuery) ([]domain.SearchResult, error) {
	req := blevesearch.NewSearchRequestOptions(textQuery(q.Text), q.Limit, 0, false)
	req.Fields = storedFields
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score < q.MinScore {
			continue
		}
		results = append(results, toResult(hit, hit.Score))
	}
	return results, nil
}

func (b *Backend) hybrid(ctx context.Context, q driven.BackendQuery) ([]domain.SearchResult, error) {
	text, err := b.textScores(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	var best float64
	for _, s := range text {
		best = math.Max(best, s)
	}

	scores := b.vectorScores(q.Vector)
	for id, v := range scores {
		var t float64
		if best > 0 {
			t = text[id] / best
		}
		scores[id] = q.VectorWeight*v + q.TextWeight*t
	}
	return b.fetch(ctx, b.rank(scores, q.MinScore, q.Limit))
}

// textScores returns the lexical score of every matching record.
func (b *Backend) textScores(ctx context.Context, text string) (map[string]float64, error) {
	b.mu.RLock()
	size := max(len(b.entries), 1)
	b.mu.RUnlock()

	req := blevesearch.NewSearchRequestOptions(textQuery(text), size, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	scores := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// vectorScores returns the clamped cosine similarity of every record.
func (b *Backend) vectorScores(vec []float32) map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scores := make(map[string]float64, len(b.entries))
	for id, e := range b.entries {
		scores[id] = cosine(vec, e.vector)
	}
	return scores
}

type scored struct {
	id    string
	score float64
}

// rank filters by minScore and returns the top limit ids, highest first
// and ties by id.
func (b *Backend) rank(scores map[string]float64, minScore float64, limit int) []scored {
	ranked := make([]scored, 0, len(scores))
	for id, s := range scores {
		if s >= minScore {
			ranked = append(ranked, scored{id: id, score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// fetch loads stored fields for ranked ids, preserving their order.
func (b *Backend) fetch(ctx context.Context, ranked []scored) ([]domain.SearchResult, error) {
	if len(ranked) == 0 {
		return []domain.SearchResult{}, nil
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	req := blevesearch.NewSearchRequestOptions(blevesearch.NewDocIDQuery(ids), len(ids), 0, false)
	req.Fields = storedFields

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	hits := make(map[string]*search.DocumentMatch, len(res.Hits))
	for _, hit := range res.Hits {
		hits[hit.ID] = hit
	}

	results := make([]domain.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		if hit, ok := hits[r.id]; ok {
			results = append(results, toResult(hit, r.score))
		}
	}
	return results, nil
}

func textQuery(text string) query.Query {
	body := blevesearch.NewMatchQuery(text)
	body.SetField(fieldText)
	body.SetFuzziness(fuzziness)
	body.SetBoost(textBoost)

	title := blevesearch.NewMatchQuery(text)
	title.SetField(fieldTitle)
	title.SetFuzziness(fuzziness)
	title.SetBoost(titleBoost)

	return blevesearch.NewDisjunctionQuery(body, title)
}

// DeleteByDocument removes every record of a document.
func (b *Backend) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	var ids []string
	for id, e := range b.entries {
		if e.documentID == documentID {
			ids = append(ids, id)
		}
	}
	b.mu.RUnlock()

	if len(ids) == 0 {
		return 0, nil
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}

	b.mu.Lock()
	for _, id := range ids {
		delete(b.entries, id)
	}
	b.mu.Unlock()
	return len(ids), nil
}

// Stats counts records and distinct documents.
func (b *Backend) Stats(_ context.Context) (domain.IndexStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	docs := make(map[string]struct{})
	for _, e := range b.entries {
		docs[e.documentID] = struct{}{}
	}
	return domain.IndexStats{Records: len(b.entries), Documents: len(docs)}, nil
}

// Ping verifies the index is open.
func (b *Backend) Ping(_ context.Context) error {
	_, err := b.index.DocCount()
	return err
}

// Close closes the index.
func (b *Backend) Close() error {
	return b.index.Close()
}

func toResult(hit *search.DocumentMatch, score float64) domain.SearchResult {
	meta := domain.RecordMetadata{
		Filename:    stringField(hit, fieldFilename),
		ChunkIndex:  intField(hit, fieldChunkIndex),
		StartOffset: intField(hit, fieldStartOffset),
		EndOffset:   intField(hit, fieldEndOffset),
		WordCount:   intField(hit, fieldWordCount),
		CharCount:   intField(hit, fieldCharCount),
		Author:      stringField(hit, fieldAuthor),
		Tags:        stringsField(hit, fieldTags),
	}
	if _, ok := hit.Fields[fieldPage]; ok {
		meta.Page = domain.IntPtr(intField(hit, fieldPage))
	}
	return domain.SearchResult{
		ChunkID:    hit.ID,
		DocumentID: stringField(hit, fieldDocumentID),
		Text:       stringField(hit, fieldText),
		Title:      stringField(hit, fieldTitle),
		Score:      score,
		Page:       meta.Page,
		Metadata:   meta,
	}
}

func stringField(hit *search.DocumentMatch, name string) string {
	s, _ := hit.Fields[name].(string)
	return s
}

func intField(hit *search.DocumentMatch, name string) int {
	f, _ := hit.Fields[name].(float64)
	return int(f)
}

// stringsField reads a multi-valued field. Bleve returns a single value
// as a plain string.
func stringsField(hit *search.DocumentMatch, name string) []string {
	switch v := hit.Fields[name].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func encodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

// cosine returns the similarity of a and b clamped to [0, 1].
func cosine(a, b []float32) float64 {
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
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}
