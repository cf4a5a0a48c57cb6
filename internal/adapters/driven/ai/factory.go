// Package ai provides factory functions for creating model and index adapters
// from configuration.
package ai

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	localembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/search/bleve"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/search/postgres"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// pinger is implemented by adapters that can check remote reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// CreateEmbeddingModel creates the embedding model selected by settings.
func CreateEmbeddingModel(settings *domain.EmbeddingSettings) (driven.EmbeddingModel, error) {
	if settings == nil {
		return nil, &domain.ConfigurationError{Field: "embedding", Reason: "missing settings"}
	}

	switch settings.Provider {
	case domain.AIProviderLocal:
		return localembed.NewEmbeddingModel(localembed.Config{
			Dimensions:   settings.Dimensions,
			MaxSeqLength: settings.MaxSeqLength,
		}), nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingModel(ollamaembed.Config{
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Dimensions:   settings.Dimensions,
			MaxSeqLength: settings.MaxSeqLength,
		}), nil

	case domain.AIProviderOpenAI:
		model, err := openaiembed.NewEmbeddingModel(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return model, nil

	case domain.AIProviderAnthropic:
		return nil, &domain.ConfigurationError{
			Field:  "embedding.provider",
			Reason: "anthropic does not support embeddings, use local, ollama or openai",
		}

	default:
		return nil, &domain.ConfigurationError{
			Field:  "embedding.provider",
			Reason: fmt.Sprintf("unsupported embedding provider: %s", settings.Provider),
		}
	}
}

// ModelLoader returns a loader that creates the embedding model and, for
// remote providers, checks that it is reachable.
func ModelLoader(settings domain.EmbeddingSettings) driven.ModelLoader {
	return func(ctx context.Context) (driven.EmbeddingModel, error) {
		model, err := CreateEmbeddingModel(&settings)
		if err != nil {
			return nil, err
		}

		if p, ok := model.(pinger); ok {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := p.Ping(pingCtx); err != nil {
				model.Close()
				return nil, fmt.Errorf("embedding model %s unreachable: %w", settings.Model, err)
			}
		}

		logger.Info("embedding model loaded: %s/%s (%d dims)",
			settings.Provider, model.ModelName(), model.Dimensions())
		return model, nil
	}
}

// CreateAnswerGenerator creates the answer generator selected by settings.
// Returns nil if no generator is configured.
func CreateAnswerGenerator(settings *domain.LLMSettings, prompts driven.PromptStore) (driven.AnswerGenerator, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	var (
		gen driven.AnswerGenerator
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOllama:
		gen = ollamallm.NewGenerator(ollamallm.Config{
			BaseURL:          settings.BaseURL,
			Model:            settings.Model,
			MaxContextTokens: settings.MaxContextTokens,
		})

	case domain.AIProviderOpenAI:
		gen, err = openaillm.NewGenerator(openaillm.Config{
			APIKey:           settings.APIKey,
			BaseURL:          settings.BaseURL,
			Model:            settings.Model,
			MaxContextTokens: settings.MaxContextTokens,
		})

	case domain.AIProviderAnthropic:
		gen, err = anthropicllm.NewGenerator(anthropicllm.Config{
			APIKey:           settings.APIKey,
			BaseURL:          settings.BaseURL,
			Model:            settings.Model,
			MaxContextTokens: settings.MaxContextTokens,
		})

	default:
		return nil, &domain.ConfigurationError{
			Field:  "llm.provider",
			Reason: fmt.Sprintf("unsupported LLM provider: %s", settings.Provider),
		}
	}
	if err != nil {
		return nil, err
	}

	if aware, ok := gen.(driven.PromptStoreAware); ok && prompts != nil {
		aware.SetPromptStore(prompts)
	}
	return gen, nil
}

// CreateSearchBackend opens the search backend selected by settings.
// A bleve index without an explicit path lives under dataDir/index.
func CreateSearchBackend(
	ctx context.Context, settings domain.IndexSettings, dimensions int, dataDir string,
) (driven.SearchBackend, error) {
	switch settings.Backend {
	case domain.IndexBackendBleve, "":
		path := settings.Path
		if path == "" && dataDir != "" {
			path = filepath.Join(dataDir, "index")
		}
		backend, err := bleve.New(bleve.Config{Path: path, Name: settings.Name})
		if err != nil {
			return nil, err
		}
		return backend, nil

	case domain.IndexBackendPostgres:
		backend, err := postgres.New(ctx, postgres.Config{
			DSN:        settings.DSN,
			Table:      settings.Name,
			Dimensions: dimensions,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, &domain.ConfigurationError{
			Field:  "index.backend",
			Reason: fmt.Sprintf("unsupported index backend: %s", settings.Backend),
		}
	}
}

// ValidateEmbeddingConfig creates the configured embedding model and pings
// it when the provider is remote.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	model, err := CreateEmbeddingModel(settings)
	if err != nil {
		return err
	}
	defer model.Close()

	p, ok := model.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// ValidateLLMConfig creates the configured answer generator and pings it.
// An unconfigured generator is valid: answers are then unavailable.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	gen, err := CreateAnswerGenerator(settings, nil)
	if err != nil {
		return err
	}
	if gen == nil {
		return nil
	}
	defer gen.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return gen.Ping(ctx)
}
