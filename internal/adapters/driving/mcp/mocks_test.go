package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	results  []domain.SearchResult
	answer   *domain.Answer
	err      error
	lastOpts domain.SearchOptions
}

var _ driving.QueryService = (*mockQueryService)(nil)

func (m *mockQueryService) Search(
	_ context.Context, _ string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.lastOpts = opts
	return m.results, m.err
}

func (m *mockQueryService) Ask(
	_ context.Context, _ string, opts domain.SearchOptions,
) (*domain.Answer, error) {
	m.lastOpts = opts
	return m.answer, m.err
}

func (m *mockQueryService) Health(_ context.Context) *domain.HealthReport {
	return &domain.HealthReport{Healthy: m.err == nil}
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	docs []domain.DocumentSummary
	doc  *domain.Document
	err  error
}

var _ driving.IngestionService = (*mockIngestionService)(nil)

func (m *mockIngestionService) IngestFile(_ context.Context, _ string) (*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) IngestBytes(
	_ context.Context, _ string, _ []byte, _ []string,
) (*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) IngestDocument(_ context.Context, _ *domain.Document) (*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) IngestDirectory(
	_ context.Context, _ string, _ bool,
) ([]domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) DeleteDocument(_ context.Context, _ string) (bool, error) {
	return m.err == nil, m.err
}

func (m *mockIngestionService) ListDocuments(_ context.Context) ([]domain.DocumentSummary, error) {
	return m.docs, m.err
}

func (m *mockIngestionService) GetDocument(
	_ context.Context, _ string,
) (*domain.Document, []domain.Chunk, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.doc, nil, nil
}

func (m *mockIngestionService) SupportedExtensions() []string {
	return []string{".txt"}
}
