package ai

import (
	"errors"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ConfigValidator checks that configured model providers are reachable.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	return ValidateEmbeddingConfig(config)
}

// ValidateLLM validates an LLM configuration by pinging the provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	return ValidateLLMConfig(config)
}

// ValidateAll checks both providers and joins their errors.
func (v *ConfigValidator) ValidateAll(cfg *domain.Config) error {
	return errors.Join(
		v.ValidateEmbedding(&cfg.Embedding),
		v.ValidateLLM(&cfg.LLM),
	)
}
