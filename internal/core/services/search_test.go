package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

type queryFixture struct {
	backend   *mockBackend
	model     *mockEmbeddingModel
	generator *mockGenerator
	service   *QueryService
}

func newQueryFixture(t *testing.T, withGenerator bool) *queryFixture {
	t.Helper()
	f := &queryFixture{
		backend: newMockBackend(),
		model:   newMockEmbeddingModel(),
	}
	exec := newTestExecutor()
	index := NewIndexEngine(f.backend, exec, newTestCache(), IndexConfig{Dimensions: testDims})

	var svc *QueryService
	if withGenerator {
		f.generator = &mockGenerator{text: "Economy class is required for flights under six hours."}
		svc = NewQueryService(newTestEmbedder(f.model), index, f.generator, exec, QueryConfig{})
	} else {
		svc = NewQueryService(newTestEmbedder(f.model), index, nil, exec, QueryConfig{})
	}
	f.service = svc

	seedIndex(t, index,
		testRecord("travel_chunk_0", "travel", "flights under six hours must be booked in economy class"),
		testRecord("travel_chunk_1", "travel", "hotel stays are reimbursed up to the city rate"),
		testRecord("leave_chunk_0", "leave", "employees accrue annual leave monthly"),
	)
	return f
}

func TestQueryService_Search_Hybrid(t *testing.T) {
	f := newQueryFixture(t, false)

	results, err := f.service.Search(context.Background(), "economy class flights", domain.SearchOptions{})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "travel_chunk_0", results[0].ChunkID)
	assert.Equal(t, domain.SearchModeHybrid, f.backend.lastQuery.Mode)
	assert.Len(t, f.backend.lastQuery.Vector, testDims)
	assert.Equal(t, domain.DefaultTopK, f.backend.lastQuery.Limit)
}

func TestQueryService_Search_KeywordSkipsEmbedding(t *testing.T) {
	f := newQueryFixture(t, false)

	results, err := f.service.Search(context.Background(), "annual leave", domain.SearchOptions{
		Mode: domain.SearchModeKeyword,
		TopK: 1,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "leave_chunk_0", results[0].ChunkID)
	assert.Empty(t, f.model.batchSizes())
	assert.Nil(t, f.backend.lastQuery.Vector)
}

func TestQueryService_Search_AppliesConfiguredDefaults(t *testing.T) {
	backend := newMockBackend()
	exec := newTestExecutor()
	index := NewIndexEngine(backend, exec, nil, IndexConfig{})
	svc := NewQueryService(newTestEmbedder(newMockEmbeddingModel()), index, nil, exec, QueryConfig{
		Mode: domain.SearchModeKeyword,
		TopK: 3,
	})

	_, err := svc.Search(context.Background(), "policy", domain.SearchOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeKeyword, backend.lastQuery.Mode)
	assert.Equal(t, 3, backend.lastQuery.Limit)
}

func TestQueryService_Search_Validation(t *testing.T) {
	f := newQueryFixture(t, false)

	tests := []struct {
		name     string
		question string
		opts     domain.SearchOptions
	}{
		{name: "empty", question: "   "},
		{name: "too long", question: strings.Repeat("q", domain.MaxQueryLength+1)},
		{name: "bad mode", question: "leave", opts: domain.SearchOptions{Mode: "fuzzy"}},
		{name: "bad top_k", question: "leave", opts: domain.SearchOptions{Mode: domain.SearchModeKeyword, TopK: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Search(context.Background(), tt.question, tt.opts)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.model.batchSizes(), "invalid queries are not embedded")
}

func TestQueryService_Search_BackendFailure(t *testing.T) {
	f := newQueryFixture(t, false)
	f.backend.err = errBackendDown

	_, err := f.service.Search(context.Background(), "leave", domain.SearchOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSearchBackend)
	assert.True(t, IsDegraded(err))
}

func TestQueryService_Ask(t *testing.T) {
	f := newQueryFixture(t, true)

	answer, err := f.service.Ask(context.Background(), "  Which class for short flights? ", domain.SearchOptions{})

	require.NoError(t, err)
	assert.Equal(t, "Which class for short flights?", answer.Question)
	assert.Equal(t, f.generator.text, answer.Text)
	assert.Equal(t, "mock-model", answer.Model)
	assert.Equal(t, 42, answer.TokensUsed)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, f.generator.chunks, answer.Sources)
	assert.Equal(t, 1, f.generator.calls)
}

func TestQueryService_Ask_NoContext(t *testing.T) {
	f := newQueryFixture(t, true)

	answer, err := f.service.Ask(context.Background(), "quantum chromodynamics", domain.SearchOptions{
		Mode: domain.SearchModeKeyword,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.NoAnswerText, answer.Text)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, f.generator.calls)
}

func TestQueryService_Ask_NoGenerator(t *testing.T) {
	f := newQueryFixture(t, false)

	_, err := f.service.Ask(context.Background(), "annual leave", domain.SearchOptions{})

	assert.ErrorIs(t, err, domain.ErrAnswerGeneratorUnavailable)
}

func TestQueryService_Ask_GeneratorFailure(t *testing.T) {
	f := newQueryFixture(t, true)
	f.generator.err = errors.New("upstream 503")

	_, err := f.service.Ask(context.Background(), "annual leave", domain.SearchOptions{})

	var genErr *domain.AnswerGeneratorError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "mock-llm", genErr.Provider)
	assert.True(t, IsDegraded(err))
	assert.Equal(t, 2, f.generator.calls, "retried once")
}

func TestQueryService_Health(t *testing.T) {
	f := newQueryFixture(t, true)

	report := f.service.Health(context.Background())

	assert.True(t, report.Healthy)
	assert.True(t, report.Backend.Healthy)
	assert.Equal(t, "mock", report.Backend.Name)
	require.NotNil(t, report.Generator)
	assert.True(t, report.Generator.Healthy)
	assert.Equal(t, domain.IndexStats{Records: 3, Documents: 2}, report.Index)
}

func TestQueryService_Health_Unhealthy(t *testing.T) {
	t.Run("backend down", func(t *testing.T) {
		f := newQueryFixture(t, false)
		f.backend.pingErr = errBackendDown

		report := f.service.Health(context.Background())

		assert.False(t, report.Healthy)
		assert.Contains(t, report.Backend.Error, "backend down")
		assert.Nil(t, report.Generator)
	})

	t.Run("generator down", func(t *testing.T) {
		f := newQueryFixture(t, true)
		f.generator.pingErr = errors.New("unreachable")

		report := f.service.Health(context.Background())

		assert.False(t, report.Healthy)
		assert.False(t, report.Generator.Healthy)
	})

	t.Run("breaker open", func(t *testing.T) {
		f := newQueryFixture(t, false)
		f.backend.err = errBackendDown
		for range 2 {
			_, _ = f.service.Search(context.Background(), "leave", domain.SearchOptions{Mode: domain.SearchModeKeyword})
		}
		f.backend.err = nil

		report := f.service.Health(context.Background())

		assert.False(t, report.Healthy)
		require.NotEmpty(t, report.Breakers)
		assert.Equal(t, domain.CircuitOpen, report.Breakers[0].State)
	})
}

func TestIsDegraded(t *testing.T) {
	assert.True(t, IsDegraded(domain.ErrCircuitOpen))
	assert.False(t, IsDegraded(&domain.ValidationError{Field: "query", Reason: "required"}))
	assert.False(t, IsDegraded(nil))
}
