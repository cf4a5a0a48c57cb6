// Package resilience wraps unreliable remote calls with retry and
// per-service circuit breakers.
//
// The composed call made by Executor retries in the outer loop and sends
// every attempt through the service's breaker. An open breaker ends the
// retry loop at once and is reported as domain.ErrCircuitOpen.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// jitterFraction bounds the random delay added to each backoff.
const jitterFraction = 0.1

// sleep waits for d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the delay before the retry that follows attempt
// (zero-based): min(base * multiplier^attempt, maxDelay), plus up to 10%
// jitter when enabled.
func Backoff(policy domain.RetryPolicy, attempt int) time.Duration {
	mult := policy.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(policy.BaseDelay) * math.Pow(mult, float64(attempt))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter && delay > 0 {
		delay += rand.Float64() * jitterFraction * delay
	}
	return time.Duration(delay)
}

// Retry calls fn up to policy.MaxAttempts times with exponential backoff.
// Non-retryable errors are returned immediately. When every attempt fails,
// the last error is returned.
func Retry(ctx context.Context, policy domain.RetryPolicy, fn func(context.Context) error) error {
	attempts := max(1, policy.MaxAttempts)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !domain.IsRetryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := Backoff(policy, attempt)
		logger.Debug("retry: attempt %d/%d failed, retrying in %s: %v", attempt+1, attempts, delay, lastErr)
		if err := sleep(ctx, delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
