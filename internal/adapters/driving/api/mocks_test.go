package api

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

type mockQueryService struct {
	results  []domain.SearchResult
	answer   *domain.Answer
	health   *domain.HealthReport
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
	if m.health != nil {
		return m.health
	}
	return &domain.HealthReport{Healthy: true}
}

type mockIngestionService struct {
	docs       []domain.DocumentSummary
	doc        *domain.Document
	chunks     []domain.Chunk
	deleted    bool
	err        error
	gotName    string
	gotContent []byte
	gotTags    []string
}

var _ driving.IngestionService = (*mockIngestionService)(nil)

func (m *mockIngestionService) IngestFile(_ context.Context, _ string) (*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) IngestBytes(
	_ context.Context, filename string, content []byte, tags []string,
) (*domain.IngestResult, error) {
	m.gotName, m.gotContent, m.gotTags = filename, content, tags
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{DocumentID: "doc-1", Filename: filename, ChunkCount: 2, Indexed: 2}, nil
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
	return m.deleted, m.err
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
	if m.doc == nil {
		return nil, nil, domain.ErrNotFound
	}
	return m.doc, m.chunks, nil
}

func (m *mockIngestionService) SupportedExtensions() []string {
	return []string{".txt", ".pdf"}
}
