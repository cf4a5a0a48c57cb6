package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Typed errors below report one of these through errors.Is.
var (
	// ErrConfiguration indicates invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation indicates rejected input. It is never retried.
	ErrValidation = errors.New("validation error")

	// ErrProcessing indicates a loading or chunking failure.
	ErrProcessing = errors.New("processing error")

	// ErrEmbedding indicates an embedding model failure.
	ErrEmbedding = errors.New("embedding error")

	// ErrSearchBackend indicates a search backend failure.
	ErrSearchBackend = errors.New("search backend error")

	// ErrAnswerGenerator indicates an answer generator failure.
	ErrAnswerGenerator = errors.New("answer generator error")
)

// Conditions reported distinctly to callers.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCircuitOpen indicates a downstream service is failing fast.
	// Callers use it to tell degraded infrastructure from an empty answer.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMemoryExhausted indicates memory stayed above the threshold after collection.
	ErrMemoryExhausted = errors.New("memory usage above threshold")

	// ErrUnsupportedFormat indicates no loader handles the file type.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrRateLimited indicates the client exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrAnswerGeneratorUnavailable indicates no answer generator is configured.
	ErrAnswerGeneratorUnavailable = errors.New("answer generator unavailable")
)

// ConfigurationError reports an invalid configuration value. Fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationError reports rejected input such as empty text or an oversized query.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ProcessingError reports a loading or chunking failure for one document.
type ProcessingError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (e *ProcessingError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("processing %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("processing %s %s: %v", e.Stage, e.DocumentID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrProcessing.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

// EmbeddingError reports a model failure or memory exhaustion.
// It is not retried inside the generator.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEmbedding.
func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}

// SearchBackendError reports a remote search backend failure.
type SearchBackendError struct {
	Op  string
	Err error
}

func (e *SearchBackendError) Error() string {
	return fmt.Sprintf("search backend %s: %v", e.Op, e.Err)
}

func (e *SearchBackendError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSearchBackend.
func (e *SearchBackendError) Is(target error) bool {
	return target == ErrSearchBackend
}

// AnswerGeneratorError reports a remote answer generator failure.
type AnswerGeneratorError struct {
	Provider string
	Err      error
}

func (e *AnswerGeneratorError) Error() string {
	return fmt.Sprintf("answer generator %s: %v", e.Provider, e.Err)
}

func (e *AnswerGeneratorError) Unwrap() error { return e.Err }

// Is reports whether target is ErrAnswerGenerator.
func (e *AnswerGeneratorError) Is(target error) bool {
	return target == ErrAnswerGenerator
}

// IngestError is the user-visible failure of one document's ingestion.
type IngestError struct {
	DocumentID string
	Filename   string
	Err        error
}

func (e *IngestError) Error() string {
	id := e.DocumentID
	if id == "" {
		id = e.Filename
	}
	return fmt.Sprintf("ingest %s: %v", id, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed remote call may succeed on retry.
// Validation errors, configuration errors and an open circuit are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
