package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Breaker is a circuit breaker for one named downstream service.
//
// Closed opens after FailureThreshold consecutive failures. Open fails
// fast until RecoveryTimeout has elapsed since the last failure, then
// moves to HalfOpen. HalfOpen closes after SuccessThreshold consecutive
// successes and re-opens on any failure.
type Breaker struct {
	name   string
	policy domain.BreakerPolicy
	now    func() time.Time

	mu          sync.Mutex
	state       domain.CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, policy domain.BreakerPolicy) *Breaker {
	return &Breaker{
		name:   name,
		policy: policy,
		now:    time.Now,
		state:  domain.CircuitClosed,
	}
}

// Name returns the service name.
func (b *Breaker) Name() string {
	return b.name
}

// Call runs fn if the breaker admits it, bounded by the policy timeout.
// While open it returns an error wrapping domain.ErrCircuitOpen without
// calling fn.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	callCtx := ctx
	if b.policy.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
		defer cancel()
	}

	err := fn(callCtx)
	switch {
	case err == nil:
		b.onSuccess()
	case ctx.Err() != nil, errors.Is(err, domain.ErrValidation):
		// Caller cancellation and rejected input say nothing about the service.
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s: %w", b.name, b.policy.Timeout, err)
		}
		b.onFailure()
	}
	return err
}

// State returns the current state, applying the recovery transition.
func (b *Breaker) State() domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() domain.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return domain.BreakerSnapshot{
		Name:          b.name,
		State:         b.state,
		Failures:      b.failures,
		Successes:     b.successes,
		LastFailureAt: b.lastFailure,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.CircuitClosed
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	if b.state == domain.CircuitOpen {
		return fmt.Errorf("%s: %w", b.name, domain.ErrCircuitOpen)
	}
	return nil
}

// maybeHalfOpen moves Open to HalfOpen once the recovery timeout has
// elapsed. Caller must hold the lock.
func (b *Breaker) maybeHalfOpen() {
	if b.state == domain.CircuitOpen && b.now().Sub(b.lastFailure) >= b.policy.RecoveryTimeout {
		b.state = domain.CircuitHalfOpen
		b.successes = 0
		logger.Info("circuit %s: half-open, probing recovery", b.name)
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitHalfOpen:
		b.successes++
		if b.successes >= b.policy.SuccessThreshold {
			b.state = domain.CircuitClosed
			b.failures = 0
			b.successes = 0
			logger.Info("circuit %s: closed", b.name)
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case domain.CircuitHalfOpen:
		b.state = domain.CircuitOpen
		b.successes = 0
		logger.Warn("circuit %s: probe failed, re-opened", b.name)
	case domain.CircuitClosed:
		b.failures++
		if b.failures >= b.policy.FailureThreshold {
			b.state = domain.CircuitOpen
			logger.Warn("circuit %s: opened after %d consecutive failures", b.name, b.failures)
		}
	}
}
