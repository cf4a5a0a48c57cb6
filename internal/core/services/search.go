package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/resilience"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// healthTimeout bounds each dependency check in Health.
const healthTimeout = 5 * time.Second

// QueryConfig holds the search defaults applied when options omit them.
type QueryConfig struct {
	Mode     domain.SearchMode
	TopK     int
	MinScore float64
}

// QueryService answers searches and questions against the index.
type QueryService struct {
	embedder  *EmbeddingGenerator
	index     *IndexEngine
	generator driven.AnswerGenerator
	exec      *resilience.Executor
	cfg       QueryConfig
}

// NewQueryService creates a query service.
// The generator is optional; without it Ask reports ErrAnswerGeneratorUnavailable.
func NewQueryService(
	embedder *EmbeddingGenerator,
	index *IndexEngine,
	generator driven.AnswerGenerator,
	exec *resilience.Executor,
	cfg QueryConfig,
) *QueryService {
	if cfg.Mode == "" {
		cfg.Mode = domain.SearchModeHybrid
	}
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	return &QueryService{
		embedder:  embedder,
		index:     index,
		generator: generator,
		exec:      exec,
		cfg:       cfg,
	}
}

// Search embeds the question when the mode needs a vector and returns
// ranked chunks. No match yields an empty slice.
func (s *QueryService) Search(
	ctx context.Context, question string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")

	q := s.buildQuery(question, opts)
	logger.Debug("Query: %q, mode: %s, top_k: %d, min_score: %.2f", q.Text, q.Mode, q.TopK, q.MinScore)

	if q.Text == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "required"}
	}
	if len(q.Text) > domain.MaxQueryLength {
		return nil, &domain.ValidationError{Field: "query", Reason: "too long"}
	}
	if !q.Mode.IsValid() {
		return nil, &domain.ValidationError{Field: "mode", Reason: "unknown search mode " + string(q.Mode)}
	}

	if q.Mode.RequiresVector() {
		vec, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		q.Vector = vec
	}

	results, err := s.index.Search(ctx, q)
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, err
	}

	logger.Info("Final results: %d", len(results))
	return results, nil
}

func (s *QueryService) buildQuery(question string, opts domain.SearchOptions) domain.SearchQuery {
	q := domain.SearchQuery{
		Text:     strings.TrimSpace(question),
		Mode:     opts.Mode,
		TopK:     opts.TopK,
		MinScore: opts.MinScore,
	}
	if q.Mode == "" {
		q.Mode = s.cfg.Mode
	}
	if q.TopK == 0 {
		q.TopK = s.cfg.TopK
	}
	if q.MinScore == 0 {
		q.MinScore = s.cfg.MinScore
	}
	return q
}

// Ask retrieves context for the question and generates an answer from it.
// When nothing relevant is found the generator is not called.
func (s *QueryService) Ask(
	ctx context.Context, question string, opts domain.SearchOptions,
) (*domain.Answer, error) {
	results, err := s.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	question = strings.TrimSpace(question)
	if len(results) == 0 {
		logger.Debug("No context found, skipping generation")
		return &domain.Answer{
			Question: question,
			Text:     domain.NoAnswerText,
			Sources:  []domain.SearchResult{},
		}, nil
	}

	if s.generator == nil {
		return nil, domain.ErrAnswerGeneratorUnavailable
	}

	answer, err := resilience.Call(ctx, s.exec, resilience.ServiceAnswerGenerator,
		func(ctx context.Context) (*domain.Answer, error) {
			return s.generator.Generate(ctx, question, results)
		})
	if err != nil {
		logger.Warn("Answer generation failed: %v", err)
		return nil, &domain.AnswerGeneratorError{Provider: s.generator.Name(), Err: err}
	}

	answer.Question = question
	if answer.Sources == nil {
		answer.Sources = results
	}
	if answer.Model == "" {
		answer.Model = s.generator.ModelName()
	}
	return answer, nil
}

// Health checks the backend and generator and reports breaker states.
func (s *QueryService) Health(ctx context.Context) *domain.HealthReport {
	report := &domain.HealthReport{
		Backend: domain.ComponentHealth{Name: s.index.BackendName(), Healthy: true},
		Cache:   s.index.CacheStats(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := s.index.Ping(pingCtx); err != nil {
		report.Backend.Healthy = false
		report.Backend.Error = err.Error()
	} else if stats, err := s.index.Stats(pingCtx); err == nil {
		report.Index = stats
	}

	if s.generator != nil {
		gen := &domain.ComponentHealth{Name: s.generator.Name(), Healthy: true}
		if err := s.generator.Ping(pingCtx); err != nil {
			gen.Healthy = false
			gen.Error = err.Error()
		}
		report.Generator = gen
	}

	report.Breakers = s.exec.Breakers().Snapshots()

	report.Healthy = report.Backend.Healthy && (report.Generator == nil || report.Generator.Healthy)
	for _, b := range report.Breakers {
		if b.State == domain.CircuitOpen {
			report.Healthy = false
		}
	}
	return report
}

// IsDegraded reports whether err came from a failing dependency rather
// than from the request itself.
func IsDegraded(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen) ||
		errors.Is(err, domain.ErrSearchBackend) ||
		errors.Is(err, domain.ErrAnswerGenerator)
}
