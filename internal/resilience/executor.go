package resilience

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Well-known service names.
const (
	ServiceSearchBackend   = "search_backend"
	ServiceAnswerGenerator = "answer_generator"
)

// Registry holds one breaker per service name.
type Registry struct {
	policy domain.BreakerPolicy

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share policy.
func NewRegistry(policy domain.BreakerPolicy) *Registry {
	return &Registry{
		policy:   policy,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.policy)
		r.breakers[name] = b
	}
	return b
}

// Snapshots returns the state of every breaker, ordered by name.
func (r *Registry) Snapshots() []domain.BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	snaps := make([]domain.BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		snaps = append(snaps, b.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Executor makes resilient calls: retry with backoff around attempts
// that each pass through the named service's breaker.
type Executor struct {
	retry    domain.RetryPolicy
	breakers *Registry
}

// NewExecutor creates an executor.
func NewExecutor(retry domain.RetryPolicy, breakers *Registry) *Executor {
	return &Executor{retry: retry, breakers: breakers}
}

// Do runs fn for service. An open breaker stops retrying immediately.
func (e *Executor) Do(ctx context.Context, service string, fn func(context.Context) error) error {
	breaker := e.breakers.Get(service)
	return Retry(ctx, e.retry, func(ctx context.Context) error {
		return breaker.Call(ctx, fn)
	})
}

// Breakers returns the executor's breaker registry.
func (e *Executor) Breakers() *Registry {
	return e.breakers
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, e *Executor, service string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, service, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
