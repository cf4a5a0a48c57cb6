package bleve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/local"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var embedder = local.NewEmbeddingModel(local.Config{})

func record(t *testing.T, chunkID, docID, title, text string) domain.IndexRecord {
	t.Helper()
	vectors, err := embedder.Embed(context.Background(), []string{text})
	require.NoError(t, err)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.IndexRecord{
		ChunkID:    chunkID,
		DocumentID: docID,
		Text:       text,
		Title:      title,
		Vector:     vectors[0],
		Metadata: domain.RecordMetadata{
			Filename:   docID + ".txt",
			ChunkIndex: 0,
			Page:       domain.IntPtr(2),
			WordCount:  len(local.Tokenize(text)),
			CharCount:  len(text),
			Author:     "HR",
			Tags:       []string{"policy", "finance"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func queryVector(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := embedder.Embed(context.Background(), []string{text})
	require.NoError(t, err)
	return v[0]
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.EnsureSchema(context.Background()))
	return b
}

func upsert(t *testing.T, b *Backend, records ...domain.IndexRecord) {
	t.Helper()
	errs, err := b.Upsert(context.Background(), records)
	require.NoError(t, err)
	for _, e := range errs {
		require.NoError(t, e)
	}
}

func TestBackend_Upsert_Idempotent(t *testing.T) {
	b := newTestBackend(t)
	rec := record(t, "doc1_chunk_0", "doc1", "Travel", "flights are booked in economy")

	upsert(t, b, rec)
	rec.Text = "flights are booked in business"
	upsert(t, b, rec)

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Records: 1, Documents: 1}, stats)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "business", Mode: domain.SearchModeKeyword, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "flights are booked in business", results[0].Text)
}

func TestBackend_Query_KeywordFields(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b,
		record(t, "a_chunk_0", "a", "Expense Policy", "Receipts are required for every expense claim."),
		record(t, "b_chunk_0", "b", "Leave Policy", "Annual leave accrues monthly."),
	)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "receipts", Mode: domain.SearchModeKeyword, Limit: 5,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "a_chunk_0", r.ChunkID)
	assert.Equal(t, "a", r.DocumentID)
	assert.Equal(t, "Expense Policy", r.Title)
	assert.Equal(t, "a.txt", r.Metadata.Filename)
	assert.Equal(t, "HR", r.Metadata.Author)
	assert.ElementsMatch(t, []string{"policy", "finance"}, r.Metadata.Tags)
	require.NotNil(t, r.Page)
	assert.Equal(t, 2, *r.Page)
	assert.Greater(t, r.Score, 0.0)
}

func TestBackend_Query_KeywordFuzzy(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b, record(t, "a_chunk_0", "a", "Travel", "Mileage is reimbursed at the standard rate."))

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "milage", Mode: domain.SearchModeKeyword, Limit: 5,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
}

func TestBackend_Query_KeywordTitleMatch(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b, record(t, "a_chunk_0", "a", "Onboarding Guide", "Welcome to the team."))

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "onboarding", Mode: domain.SearchModeKeyword, Limit: 5,
	})

	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBackend_Query_Semantic(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b,
		record(t, "a_chunk_0", "a", "", "hotel accommodation limits"),
		record(t, "b_chunk_0", "b", "", "parental leave entitlement"),
	)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Vector: queryVector(t, "hotel accommodation"),
		Mode:   domain.SearchModeSemantic,
		Limit:  5,
	})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestBackend_Query_HybridRanking(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b,
		record(t, "a_chunk_0", "a", "", "Travel expenses qualify for reimbursement after approval."),
		record(t, "b_chunk_0", "b", "", "Managers approve reimbursing staff for travel."),
		record(t, "c_chunk_0", "c", "", "Annual leave accrues monthly."),
	)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text:         "reimbursement",
		Vector:       queryVector(t, "reimbursement"),
		Mode:         domain.SearchModeHybrid,
		Limit:        10,
		VectorWeight: 0.7,
		TextWeight:   0.3,
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a_chunk_0", results[0].ChunkID)
	assert.Equal(t, "b_chunk_0", results[1].ChunkID)
	assert.Equal(t, "c_chunk_0", results[2].ChunkID)
	assert.Greater(t, results[0].Score, 0.3, "exact text match gets the full text weight")
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestBackend_Query_MinScoreAndLimit(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b,
		record(t, "a_chunk_0", "a", "", "security badge policy"),
		record(t, "b_chunk_0", "b", "", "security badge policy"),
		record(t, "c_chunk_0", "c", "", "unrelated cafeteria menu"),
	)
	vec := queryVector(t, "security badge policy")

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Vector: vec, Mode: domain.SearchModeSemantic, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_chunk_0", results[0].ChunkID, "ties broken by chunk id")

	results, err = b.Query(context.Background(), driven.BackendQuery{
		Vector: vec, Mode: domain.SearchModeSemantic, Limit: 10, MinScore: 0.99,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBackend_Query_Empty(t *testing.T) {
	b := newTestBackend(t)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "anything", Vector: queryVector(t, "anything"), Mode: domain.SearchModeHybrid, Limit: 5,
	})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err = b.Query(context.Background(), driven.BackendQuery{Mode: "fuzzy", Limit: 1})
	assert.Error(t, err)
}

func TestBackend_DeleteByDocument(t *testing.T) {
	b := newTestBackend(t)
	upsert(t, b,
		record(t, "a_chunk_0", "a", "", "alpha one"),
		record(t, "a_chunk_1", "a", "", "alpha two"),
		record(t, "b_chunk_0", "b", "", "beta"),
	)

	n, err := b.DeleteByDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.DeleteByDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Text: "alpha", Mode: domain.SearchModeKeyword, Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Records: 1, Documents: 1}, stats)
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{Path: dir, Name: "test"})
	require.NoError(t, err)
	upsert(t, b, record(t, "a_chunk_0", "a", "", "persisted vector text"))
	require.NoError(t, b.Close())

	b, err = New(Config{Path: dir, Name: "test"})
	require.NoError(t, err)
	defer b.Close()

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)

	results, err := b.Query(context.Background(), driven.BackendQuery{
		Vector: queryVector(t, "persisted vector text"), Mode: domain.SearchModeSemantic, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestBackend_PingAndClose(t *testing.T) {
	b, err := NewMemOnly()
	require.NoError(t, err)
	assert.Equal(t, "bleve", b.Name())
	require.NoError(t, b.Ping(context.Background()))

	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(context.Background()))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}

	got, err := decodeVector(encodeVector(v))

	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector("AAA=")
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Zero(t, cosine([]float32{1}, []float32{1, 0}))
	assert.Zero(t, cosine(nil, nil))
}
