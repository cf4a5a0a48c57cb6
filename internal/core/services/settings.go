package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Environment variables that override secrets in the config file.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvOpenAIAPIKey    = "SERCHA_RAG_OPENAI_API_KEY"
	EnvAnthropicAPIKey = "SERCHA_RAG_ANTHROPIC_API_KEY"
	EnvPostgresDSN     = "SERCHA_RAG_PG_DSN"
)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyChunkSize    = "chunking.size"
	keyChunkOverlap = "chunking.overlap"

	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedDims      = "embedding.dimensions"
	keyEmbedMaxSeq    = "embedding.max_seq_length"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedThreshold = "embedding.memory_threshold"

	keyIndexBackend = "index.backend"
	keyIndexName    = "index.name"
	keyIndexPath    = "index.path"
	keyIndexDSN     = "index.dsn"

	keySearchMode     = "search.mode"
	keySearchTopK     = "search.top_k"
	keySearchMinScore = "search.min_score"
	keyVectorWeight   = "search.vector_weight"
	keyTextWeight     = "search.text_weight"
	keySearchCacheTTL = "search.cache_ttl"

	keyCacheMaxSize = "cache.max_size"
	keyCacheTTL     = "cache.default_ttl"

	keyBreakerFailures  = "breaker.failure_threshold"
	keyBreakerRecovery  = "breaker.recovery_timeout"
	keyBreakerSuccesses = "breaker.success_threshold"
	keyBreakerTimeout   = "breaker.timeout"

	keyRetryAttempts  = "retry.max_attempts"
	keyRetryBaseDelay = "retry.base_delay"
	keyRetryMaxDelay  = "retry.max_delay"

	keyLLMProvider   = "llm.provider"
	keyLLMModel      = "llm.model"
	keyLLMBaseURL    = "llm.base_url"
	keyLLMAPIKey     = "llm.api_key"
	keyLLMMaxContext = "llm.max_context_tokens"

	keyServerAddr       = "server.addr"
	keyIngestionWorkers = "ingestion.workers"
	keyDataDir          = "data_dir"
)

// SettingsService reads and validates application configuration.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
	validate    *validator.Validate
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadConfig reads and validates the configuration held by store.
func LoadConfig(store driven.ConfigStore) (*domain.Config, error) {
	return NewSettingsService(store).Load()
}

// Load builds the configuration and validates it. Invalid values are fatal.
func (s *SettingsService) Load() (*domain.Config, error) {
	cfg := s.Build()
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Build merges defaults, the config store and the environment without
// validating the result.
func (s *SettingsService) Build() *domain.Config {
	d := domain.DefaultConfig()

	cfg := &domain.Config{
		Chunking: domain.ChunkingSettings{
			Size:    s.getInt(keyChunkSize, d.Chunking.Size),
			Overlap: s.getInt(keyChunkOverlap, d.Chunking.Overlap),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:        s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:           s.configStore.GetString(keyEmbedModel),
			Dimensions:      s.getInt(keyEmbedDims, 0),
			MaxSeqLength:    s.getInt(keyEmbedMaxSeq, d.Embedding.MaxSeqLength),
			BaseURL:         s.configStore.GetString(keyEmbedBaseURL),
			APIKey:          s.configStore.GetString(keyEmbedAPIKey),
			MemoryThreshold: s.getFloat(keyEmbedThreshold, d.Embedding.MemoryThreshold),
		},
		Index: domain.IndexSettings{
			Backend: domain.IndexBackend(s.getString(keyIndexBackend, string(d.Index.Backend))),
			Name:    s.getString(keyIndexName, d.Index.Name),
			Path:    s.configStore.GetString(keyIndexPath),
			DSN:     s.configStore.GetString(keyIndexDSN),
		},
		Search: domain.SearchSettings{
			Mode:         domain.SearchMode(s.getString(keySearchMode, string(d.Search.Mode))),
			TopK:         s.getInt(keySearchTopK, d.Search.TopK),
			MinScore:     s.getFloat(keySearchMinScore, d.Search.MinScore),
			VectorWeight: s.getFloat(keyVectorWeight, d.Search.VectorWeight),
			TextWeight:   s.getFloat(keyTextWeight, d.Search.TextWeight),
			CacheTTL:     s.getDuration(keySearchCacheTTL, d.Search.CacheTTL),
		},
		Cache: domain.CacheSettings{
			MaxSize:    s.getInt(keyCacheMaxSize, d.Cache.MaxSize),
			DefaultTTL: s.getDuration(keyCacheTTL, d.Cache.DefaultTTL),
		},
		RateLimits: s.rateLimits(d.RateLimits),
		Breaker: domain.BreakerPolicy{
			FailureThreshold: s.getInt(keyBreakerFailures, d.Breaker.FailureThreshold),
			RecoveryTimeout:  s.getDuration(keyBreakerRecovery, d.Breaker.RecoveryTimeout),
			SuccessThreshold: s.getInt(keyBreakerSuccesses, d.Breaker.SuccessThreshold),
			Timeout:          s.getDuration(keyBreakerTimeout, d.Breaker.Timeout),
		},
		Retry: domain.RetryPolicy{
			MaxAttempts: s.getInt(keyRetryAttempts, d.Retry.MaxAttempts),
			BaseDelay:   s.getDuration(keyRetryBaseDelay, d.Retry.BaseDelay),
			MaxDelay:    s.getDuration(keyRetryMaxDelay, d.Retry.MaxDelay),
			Multiplier:  d.Retry.Multiplier,
			Jitter:      d.Retry.Jitter,
		},
		LLM: domain.LLMSettings{
			Provider:         s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:            s.configStore.GetString(keyLLMModel),
			BaseURL:          s.configStore.GetString(keyLLMBaseURL),
			APIKey:           s.configStore.GetString(keyLLMAPIKey),
			MaxContextTokens: s.getInt(keyLLMMaxContext, d.LLM.MaxContextTokens),
		},
		Server:    domain.ServerSettings{Addr: s.getString(keyServerAddr, d.Server.Addr)},
		Ingestion: domain.IngestionSettings{Workers: s.getInt(keyIngestionWorkers, d.Ingestion.Workers)},
		DataDir:   s.configStore.GetString(keyDataDir),
	}

	s.applyModelDefaults(cfg)
	s.applyEnvironment(cfg)
	return cfg
}

// applyModelDefaults fills models and dimensions left unset for the provider.
func (s *SettingsService) applyModelDefaults(cfg *domain.Config) {
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = domain.DefaultEmbeddingModels()[cfg.Embedding.Provider]
	}
	if cfg.Embedding.Dimensions == 0 {
		if dims, ok := domain.EmbeddingDimensions()[cfg.Embedding.Model]; ok {
			cfg.Embedding.Dimensions = dims
		} else {
			cfg.Embedding.Dimensions = domain.DefaultConfig().Embedding.Dimensions
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = domain.DefaultLLMModels()[cfg.LLM.Provider]
	}
}

// applyEnvironment lets environment variables supply secrets.
func (s *SettingsService) applyEnvironment(cfg *domain.Config) {
	keys := map[domain.AIProvider]string{
		domain.AIProviderOpenAI:    s.getenv(EnvOpenAIAPIKey),
		domain.AIProviderAnthropic: s.getenv(EnvAnthropicAPIKey),
	}
	if key := keys[cfg.Embedding.Provider]; key != "" {
		cfg.Embedding.APIKey = key
	}
	if key := keys[cfg.LLM.Provider]; key != "" {
		cfg.LLM.APIKey = key
	}
	if dsn := s.getenv(EnvPostgresDSN); dsn != "" {
		cfg.Index.DSN = dsn
	}
}

// Validate checks every field of cfg and reports each violation as a
// ConfigurationError.
func (s *SettingsService) Validate(cfg *domain.Config) error {
	var errs []error

	if err := s.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &domain.ConfigurationError{Field: "config", Reason: err.Error()}
		}
		for _, fe := range verrs {
			errs = append(errs, &domain.ConfigurationError{
				Field:  strings.TrimPrefix(fe.Namespace(), "Config."),
				Reason: fmt.Sprintf("failed on '%s' tag", fe.Tag()),
			})
		}
	}

	if cfg.Search.VectorWeight+cfg.Search.TextWeight == 0 {
		errs = append(errs, &domain.ConfigurationError{Field: "Search", Reason: "vector and text weights are both zero"})
	}
	if cfg.Embedding.Provider.RequiresAPIKey() && cfg.Embedding.APIKey == "" {
		errs = append(errs, &domain.ConfigurationError{Field: "Embedding.APIKey", Reason: "required for " + cfg.Embedding.Provider.String()})
	}
	if cfg.LLM.Provider.RequiresAPIKey() && cfg.LLM.APIKey == "" {
		errs = append(errs, &domain.ConfigurationError{Field: "LLM.APIKey", Reason: "required for " + cfg.LLM.Provider.String()})
	}

	return errors.Join(errs...)
}

// Set parses a raw value and stores it. Integers, floats and booleans are
// stored typed; everything else is stored as a string.
func (s *SettingsService) Set(key, raw string) error {
	var value any = raw
	if i, err := strconv.Atoi(raw); err == nil {
		value = i
	} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
		value = f
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}
	return s.configStore.Set(key, value)
}

func (s *SettingsService) rateLimits(defaults map[domain.EndpointClass]domain.RateLimit) map[domain.EndpointClass]domain.RateLimit {
	limits := make(map[domain.EndpointClass]domain.RateLimit, len(defaults))
	for _, class := range domain.AllEndpointClasses() {
		prefix := "ratelimit." + string(class) + "."
		def := defaults[class]
		limits[class] = domain.RateLimit{
			RequestsPerMinute: s.getInt(prefix+"requests_per_minute", def.RequestsPerMinute),
			Burst:             s.getInt(prefix+"burst", def.Burst),
		}
	}
	return limits
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return domain.AIProvider(strings.ToLower(val))
}

// getDuration reads seconds as a number, or a Go duration string such as "5m".
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	if str, ok := val.(string); ok {
		d, err := time.ParseDuration(str)
		if err != nil {
			return -1
		}
		return d
	}
	return time.Duration(s.configStore.GetFloat(key) * float64(time.Second))
}
