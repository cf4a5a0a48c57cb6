// Command sercha-rag is the hybrid retrieval service for policy documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/cache"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/loaders"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
	"github.com/custodia-labs/sercha-rag/internal/ratelimit"
	"github.com/custodia-labs/sercha-rag/internal/resilience"
	"github.com/custodia-labs/sercha-rag/internal/sysmem"
)

// version is set via -ldflags at build time.
var version = "dev"

func main() {
	// A missing .env is normal; secrets may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx, cli.Options{
		Version:    version,
		Bootstrap:  bootstrap,
		OpenConfig: openConfig,
		CheckProviders: func(cfg *domain.Config) error {
			return ai.NewConfigValidator().ValidateAll(cfg)
		},
	})
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func openConfig(path string) (driven.ConfigStore, error) {
	if path == "" {
		return file.NewConfigStore("")
	}
	return file.OpenConfigStore(path)
}

// closers releases components in reverse order of creation.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}
}

// bootstrap wires every component from the configuration.
func bootstrap(ctx context.Context, configPath string) (*cli.App, func(), error) {
	store, err := openConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := services.LoadConfig(store)
	if err != nil {
		return nil, nil, err
	}

	dataDir, err := resolveDataDir(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Config %s, data %s", store.Path(), dataDir)

	var cs closers
	fail := func(err error) (*cli.App, func(), error) {
		cs.closeAll()
		return nil, nil, err
	}

	registry, indexDir, err := openRegistry(dataDir, &cs)
	if err != nil {
		return fail(err)
	}

	backend, err := ai.CreateSearchBackend(ctx, cfg.Index, cfg.Embedding.Dimensions, indexDir)
	if err != nil {
		return fail(fmt.Errorf("open search backend: %w", err))
	}
	cs.add(backend.Close)

	probe := sysmem.NewProbe()
	embedder := services.NewEmbeddingGenerator(ai.ModelLoader(cfg.Embedding), probe, services.EmbeddingConfig{
		MemoryThreshold: cfg.Embedding.MemoryThreshold,
		MaxSeqLength:    cfg.Embedding.MaxSeqLength,
	})
	cs.add(embedder.Close)

	exec := resilience.NewExecutor(cfg.Retry, resilience.NewRegistry(cfg.Breaker))
	results := cache.New[[]domain.SearchResult](cache.Options{
		MaxSize:         cfg.Cache.MaxSize,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		MemoryThreshold: cfg.Embedding.MemoryThreshold,
		Probe:           probe,
	})

	index := services.NewIndexEngine(backend, exec, results, services.IndexConfig{
		Dimensions:   cfg.Embedding.Dimensions,
		VectorWeight: cfg.Search.VectorWeight,
		TextWeight:   cfg.Search.TextWeight,
		CacheTTL:     cfg.Search.CacheTTL,
	})
	if err := index.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("prepare index: %w", err))
	}

	procs := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(procs)
	pipeline, err := postprocessors.BuildPipeline(procs, domain.PipelineConfigFor(cfg.Chunking))
	if err != nil {
		return fail(err)
	}

	ingestion := services.NewIngestionService(loaders.DefaultRegistry(), pipeline, embedder, index, registry,
		services.IngestionConfig{Workers: cfg.Ingestion.Workers})

	prompts, err := file.NewPromptStore(filepath.Join(filepath.Dir(store.Path()), "prompts"))
	if err != nil {
		return fail(err)
	}
	generator, err := ai.CreateAnswerGenerator(&cfg.LLM, prompts)
	if err != nil {
		return fail(fmt.Errorf("create answer generator: %w", err))
	}
	if generator != nil {
		cs.add(generator.Close)
	}

	query := services.NewQueryService(embedder, index, generator, exec, services.QueryConfig{
		Mode:     cfg.Search.Mode,
		TopK:     cfg.Search.TopK,
		MinScore: cfg.Search.MinScore,
	})

	limiter := ratelimit.New(cfg.RateLimits, ratelimit.Options{})

	scheduler := services.NewScheduler(services.DefaultSchedulerTick)
	scheduler.Register(services.Task{
		Name:     "result-cache-purge",
		Interval: time.Minute,
		Run: func(context.Context) (int, error) {
			return index.PurgeExpiredResults(), nil
		},
	})
	scheduler.Register(services.Task{
		Name:     "ratelimit-cleanup",
		Interval: 10 * time.Minute,
		Run: func(context.Context) (int, error) {
			return limiter.Cleanup(time.Now()), nil
		},
	})

	app := &cli.App{
		Config:    cfg,
		Ingestion: ingestion,
		Query:     query,
		Limiter:   limiter,
		Scheduler: scheduler,
	}
	return app, cs.closeAll, nil
}

// memoryDataDir keeps every store in process memory.
const memoryDataDir = ":memory:"

// openRegistry opens the document registry and returns the directory the
// index lives under. The in-memory registry pairs with an in-memory index.
func openRegistry(dataDir string, cs *closers) (driven.DocumentStore, string, error) {
	if dataDir == memoryDataDir {
		logger.Warn("Using in-memory storage; documents are lost on exit")
		return memory.NewDocumentStore(), "", nil
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("open document registry: %w", err)
	}
	cs.add(store.Close)
	return store, dataDir, nil
}

// resolveDataDir defaults the data directory to ~/.sercha-rag/data.
func resolveDataDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, file.DefaultDirName, "data"), nil
}
