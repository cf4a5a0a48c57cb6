package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

type mockQueryService struct {
	results   []domain.SearchResult
	answer    *domain.Answer
	err       error
	lastQuery string
	lastOpts  domain.SearchOptions
}

var _ driving.QueryService = (*mockQueryService)(nil)

func (m *mockQueryService) Search(
	_ context.Context, q string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.lastQuery, m.lastOpts = q, opts
	return m.results, m.err
}

func (m *mockQueryService) Ask(
	_ context.Context, q string, opts domain.SearchOptions,
) (*domain.Answer, error) {
	m.lastQuery, m.lastOpts = q, opts
	return m.answer, m.err
}

func (m *mockQueryService) Health(_ context.Context) *domain.HealthReport {
	return &domain.HealthReport{Healthy: m.err == nil}
}

type mockIngestionService struct {
	docs      []domain.DocumentSummary
	doc       *domain.Document
	chunks    []domain.Chunk
	deleted   bool
	err       error
	files     []string
	dirs      []string
	dirResult []domain.IngestResult
}

var _ driving.IngestionService = (*mockIngestionService)(nil)

func (m *mockIngestionService) IngestFile(_ context.Context, path string) (*domain.IngestResult, error) {
	m.files = append(m.files, path)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{DocumentID: "doc-1", Filename: path, ChunkCount: 3, Indexed: 3}, nil
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
	_ context.Context, dir string, _ bool,
) ([]domain.IngestResult, error) {
	m.dirs = append(m.dirs, dir)
	return m.dirResult, m.err
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
	return []string{".txt"}
}

// useApp installs a for the duration of the test.
func useApp(t *testing.T, a *App) {
	t.Helper()
	app, appErr, appCleanup = a, nil, nil
	appOnce = sync.Once{}
	t.Cleanup(func() {
		app, appErr, appCleanup = nil, nil, nil
		appOnce = sync.Once{}
	})
}

// useConfigStore installs an in-memory config store for the test.
func useConfigStore(t *testing.T, values map[string]any) *memory.ConfigStore {
	t.Helper()
	store := memory.NewConfigStore()
	for k, v := range values {
		_ = store.Set(k, v)
	}
	old := openConfig
	openConfig = func(string) (driven.ConfigStore, error) { return store, nil }
	t.Cleanup(func() { openConfig = old })
	return store
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	searchLimit, searchMode, searchMinScore, searchJSON = domain.DefaultTopK, "", 0, false
	askLimit, askMode, askJSON = domain.DefaultTopK, "", false
	ingestRecursive, listJSON, showChunks = false, false, false
	serveAddr = ""
	watchRecursive, watchNoSync = false, false
	configPath, verbose = "", false
	validatePing = false
}

var errBoom = errors.New("boom")
