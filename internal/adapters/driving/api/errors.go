package api

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Error is the JSON body of a failed request.
type Error struct {
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	DocumentID string `json:"document_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`
	Errors    map[string]string `json:"errors"`
	RequestID string            `json:"request_id,omitempty"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// NewError creates an API error.
func NewError(status int, code, msg string) Error {
	return Error{Status: status, Code: code, Message: msg}
}

// NewValidationError creates a 422 error for the given field failures.
func NewValidationError(fields map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Code:   "validation_failed",
		Errors: fields,
	}
}

// ErrBadRequest is returned when the body cannot be parsed.
func ErrBadRequest(msg string) Error {
	return NewError(fiber.StatusBadRequest, "bad_request", msg)
}

// rateLimitedError carries the bucket state of a denied request.
type rateLimitedError struct {
	info domain.RateInfo
}

func (e *rateLimitedError) Error() string { return domain.ErrRateLimited.Error() }

func (e *rateLimitedError) Unwrap() error { return domain.ErrRateLimited }

// ErrorHandler maps errors returned by handlers and middleware to JSON responses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	requestID := requestIDFrom(c)

	var valErr ValidationError
	var domValErr *domain.ValidationError
	switch {
	case errors.As(err, &valErr):
	case errors.As(err, &domValErr):
		valErr = NewValidationError(map[string]string{domValErr.Field: domValErr.Reason})
	}
	if valErr.Status != 0 {
		valErr.RequestID = requestID
		return c.Status(valErr.Status).JSON(valErr)
	}

	apiErr := toAPIError(c, err)
	apiErr.RequestID = requestID
	if apiErr.Status >= fiber.StatusInternalServerError {
		logger.Error("%s %s failed (%d, request %s): %v", c.Method(), c.Path(), apiErr.Status, requestID, err)
	} else {
		logger.Debug("%s %s rejected (%d): %v", c.Method(), c.Path(), apiErr.Status, err)
	}
	return c.Status(apiErr.Status).JSON(apiErr)
}

func toAPIError(c *fiber.Ctx, err error) Error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var limited *rateLimitedError
	if errors.As(err, &limited) {
		setRetryAfter(c, limited.info)
		return NewError(fiber.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}

	var ingestErr *domain.IngestError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return NewError(fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return NewError(fiber.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, domain.ErrCircuitOpen):
		return NewError(fiber.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, domain.ErrAnswerGeneratorUnavailable):
		return NewError(fiber.StatusServiceUnavailable, "generator_unavailable", err.Error())
	case errors.Is(err, domain.ErrMemoryExhausted):
		return NewError(fiber.StatusServiceUnavailable, "memory_exhausted", err.Error())
	case errors.As(err, &ingestErr):
		e := NewError(fiber.StatusInternalServerError, "ingest_failed", err.Error())
		e.DocumentID = ingestErr.DocumentID
		return e
	case services.IsDegraded(err):
		return NewError(fiber.StatusServiceUnavailable, "dependency_unavailable", err.Error())
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewError(fiberErr.Code, "http_error", fiberErr.Message)
	}

	return NewError(fiber.StatusInternalServerError, "internal_error", "internal server error")
}

// setRateHeaders writes the X-RateLimit-* headers for a checked request.
func setRateHeaders(c *fiber.Ctx, info domain.RateInfo) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// setRetryAfter writes Retry-After in whole seconds, rounded up.
func setRetryAfter(c *fiber.Ctx, info domain.RateInfo) {
	secs := int(math.Ceil(info.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
}
