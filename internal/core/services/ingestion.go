package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// DefaultIngestionWorkers bounds concurrent file ingestion in a directory.
const DefaultIngestionWorkers = 4

// LoaderRegistry selects a document loader by file name.
type LoaderRegistry interface {
	For(filename string) (driven.DocumentLoader, error)
	Extensions() []string
}

// IngestionConfig tunes the ingestion orchestrator.
type IngestionConfig struct {
	// Workers bounds concurrent files in IngestDirectory (default: 4).
	Workers int
}

// IngestionService sequences loading, chunking, embedding and indexing.
// A failure aborts only the document being ingested.
type IngestionService struct {
	loaders  LoaderRegistry
	pipeline driven.PostProcessorPipeline
	embedder *EmbeddingGenerator
	index    *IndexEngine
	docStore driven.DocumentStore
	cfg      IngestionConfig
	now      func() time.Time
}

// NewIngestionService creates an ingestion orchestrator.
func NewIngestionService(
	loaders LoaderRegistry,
	pipeline driven.PostProcessorPipeline,
	embedder *EmbeddingGenerator,
	index *IndexEngine,
	docStore driven.DocumentStore,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultIngestionWorkers
	}
	return &IngestionService{
		loaders:  loaders,
		pipeline: pipeline,
		embedder: embedder,
		index:    index,
		docStore: docStore,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IngestFile loads and ingests a single file.
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*domain.IngestResult, error) {
	start := s.now()
	filename := filepath.Base(path)

	loader, err := s.loaders.For(filename)
	if err != nil {
		return nil, &domain.IngestError{Filename: filename, Err: loadFailure(filename, err)}
	}

	doc, err := loader.Load(ctx, path)
	if err != nil {
		return nil, &domain.IngestError{Filename: filename, Err: loadFailure(filename, err)}
	}

	return s.ingest(ctx, doc, start)
}

// IngestBytes ingests in-memory content such as an upload.
func (s *IngestionService) IngestBytes(
	ctx context.Context, filename string, content []byte, tags []string,
) (*domain.IngestResult, error) {
	start := s.now()
	filename = filepath.Base(strings.TrimSpace(filename))

	switch {
	case filename == "" || filename == "." || filename == string(filepath.Separator):
		return nil, &domain.ValidationError{Field: "filename", Reason: "required"}
	case len(content) == 0:
		return nil, &domain.ValidationError{Field: "file", Reason: "empty"}
	}

	loader, err := s.loaders.For(filename)
	if err != nil {
		return nil, &domain.IngestError{Filename: filename, Err: loadFailure(filename, err)}
	}

	doc, err := loader.LoadBytes(ctx, filename, content)
	if err != nil {
		return nil, &domain.IngestError{Filename: filename, Err: loadFailure(filename, err)}
	}
	doc.Metadata.Tags = tags

	return s.ingest(ctx, doc, start)
}

// IngestDocument ingests an already-loaded document.
func (s *IngestionService) IngestDocument(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	if doc == nil || doc.ID == "" {
		return nil, &domain.ValidationError{Field: "document", Reason: "document with an id required"}
	}
	return s.ingest(ctx, doc, s.now())
}

// ingest runs chunk, embed, index and register for one document.
func (s *IngestionService) ingest(ctx context.Context, doc *domain.Document, start time.Time) (*domain.IngestResult, error) {
	fail := func(err error) (*domain.IngestResult, error) {
		logger.Warn("Ingestion of %s failed: %v", doc.Filename, err)
		return nil, &domain.IngestError{DocumentID: doc.ID, Filename: doc.Filename, Err: err}
	}

	logger.Info("Ingesting %s (%s)", doc.Filename, doc.ID)

	// 1. Chunk
	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		if !errors.Is(err, domain.ErrProcessing) {
			err = &domain.ProcessingError{DocumentID: doc.ID, Stage: "chunk", Err: err}
		}
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(&domain.ProcessingError{DocumentID: doc.ID, Stage: "chunk", Err: errors.New("no text content")})
	}
	logger.Debug("Created %d chunks", len(chunks))

	// 2. Embed, preserving chunk order
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(err)
	}

	// 3. Index
	now := s.now()
	records := make([]domain.IndexRecord, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		records[i] = domain.NewIndexRecord(doc, chunks[i], now)
	}

	batch, err := s.index.IndexBatch(ctx, records)
	if err != nil {
		return fail(err)
	}

	// 4. Register
	if err := s.register(ctx, doc, chunks); err != nil {
		if _, derr := s.index.DeleteDocument(ctx, doc.ID); derr != nil {
			logger.Warn("Rollback of %s failed: %v", doc.ID, derr)
		}
		return fail(&domain.ProcessingError{DocumentID: doc.ID, Stage: "register", Err: err})
	}

	result := &domain.IngestResult{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		ChunkCount: len(chunks),
		Indexed:    batch.Indexed,
		Failed:     batch.Failed,
		Duration:   s.now().Sub(start),
	}
	for _, e := range batch.Errors {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.ChunkID, e.Err))
	}

	logger.Info("Ingested %s: %d chunks, %d indexed, %d failed", doc.Filename, result.ChunkCount, result.Indexed, result.Failed)
	return result, nil
}

func (s *IngestionService) register(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// loadFailure reports a loader failure as a processing error.
func loadFailure(filename string, err error) error {
	if errors.Is(err, domain.ErrProcessing) {
		return err
	}
	return &domain.ProcessingError{DocumentID: filename, Stage: "load", Err: err}
}

// IngestDirectory ingests every supported file under dir with bounded
// concurrency. Results are in walk order; a failed file carries its
// error in the result and never aborts the others.
func (s *IngestionService) IngestDirectory(ctx context.Context, dir string, recursive bool) ([]domain.IngestResult, error) {
	paths, err := s.collectFiles(dir, recursive)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	logger.Info("Found %d supported files in %s", len(paths), dir)

	results := make([]domain.IngestResult, len(paths))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = failedResult(path, err)
				return nil
			}
			res, err := s.IngestFile(ctx, path)
			if err != nil {
				results[i] = failedResult(path, err)
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

func failedResult(path string, err error) domain.IngestResult {
	res := domain.IngestResult{Filename: filepath.Base(path), Errors: []string{err.Error()}}
	var ierr *domain.IngestError
	if errors.As(err, &ierr) {
		res.DocumentID = ierr.DocumentID
	}
	return res
}

// collectFiles lists supported files under dir, skipping hidden entries.
func (s *IngestionService) collectFiles(dir string, recursive bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, err := s.loaders.For(d.Name()); err == nil {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// DeleteDocument removes a document from the index and the registry.
// It reports false when the registry did not know the document.
func (s *IngestionService) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	if strings.TrimSpace(documentID) == "" {
		return false, &domain.ValidationError{Field: "document_id", Reason: "required"}
	}

	if _, err := s.index.DeleteDocument(ctx, documentID); err != nil {
		return false, err
	}

	err := s.docStore.DeleteDocument(ctx, documentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("delete document: %w", err)
	}

	logger.Info("Deleted document %s", documentID)
	return true, nil
}

// ListDocuments returns every ingested document.
func (s *IngestionService) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	return s.docStore.ListDocuments(ctx)
}

// GetDocument returns an ingested document with its chunks in index order.
func (s *IngestionService) GetDocument(ctx context.Context, documentID string) (*domain.Document, []domain.Chunk, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.docStore.GetChunks(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

// SupportedExtensions lists the file types that can be ingested.
func (s *IngestionService) SupportedExtensions() []string {
	return s.loaders.Extensions()
}
