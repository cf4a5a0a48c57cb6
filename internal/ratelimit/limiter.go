// Package ratelimit provides per-client, per-endpoint-class token buckets.
//
// Each (client, class) pair owns a golang.org/x/time/rate limiter that
// refills lazily from elapsed time; there is no background refill. Idle
// buckets are purged by Cleanup. Internal failures let the request through.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultMaxIdle is how long an unused bucket survives before cleanup.
const DefaultMaxIdle = time.Hour

// Options configures a Limiter.
type Options struct {
	// MaxIdle is the bucket idle age purged by Cleanup (default: 1h).
	MaxIdle time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

type bucketKey struct {
	client string
	class  domain.EndpointClass
}

type bucket struct {
	limiter  *rate.Limiter
	limit    domain.RateLimit
	lastUsed time.Time
}

// Limiter holds token buckets keyed by client identity and endpoint class.
type Limiter struct {
	mu      sync.Mutex
	limits  map[domain.EndpointClass]domain.RateLimit
	buckets map[bucketKey]*bucket
	opts    Options
}

// New creates a limiter. Classes missing from limits fall back to the
// default class; a nil map uses domain.DefaultRateLimits.
func New(limits map[domain.EndpointClass]domain.RateLimit, opts Options) *Limiter {
	if limits == nil {
		limits = domain.DefaultRateLimits()
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	copied := make(map[domain.EndpointClass]domain.RateLimit, len(limits))
	for class, l := range limits {
		copied[class] = l
	}

	return &Limiter{
		limits:  copied,
		buckets: make(map[bucketKey]*bucket),
		opts:    opts,
	}
}

// Allow spends one token from the client's bucket for class.
// A denied request carries RetryAfter in the returned info.
func (l *Limiter) Allow(clientID string, class domain.EndpointClass) (allowed bool, info domain.RateInfo) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("ratelimit: check failed for %s/%s, allowing: %v", clientID, class, r)
			allowed, info = true, domain.RateInfo{}
		}
	}()

	now := l.opts.Now()
	b, ok := l.bucketFor(clientID, class, now)
	if !ok {
		logger.Warn("ratelimit: no limit configured for class %q, allowing", class)
		return true, domain.RateInfo{}
	}

	allowed = b.limiter.AllowN(now, 1)
	perToken := time.Duration(float64(time.Minute) / float64(b.limit.RequestsPerMinute))

	info = domain.RateInfo{
		Limit:     b.limit.Burst,
		Remaining: max(0, int(b.limiter.TokensAt(now))),
		ResetAt:   now.Add(perToken),
	}
	if !allowed {
		info.RetryAfter = perToken
	}
	return allowed, info
}

// bucketFor returns the bucket for (client, class), creating it full.
func (l *Limiter) bucketFor(clientID string, class domain.EndpointClass, now time.Time) (*bucket, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[class]
	if !ok {
		class = domain.EndpointDefault
		if limit, ok = l.limits[class]; !ok {
			return nil, false
		}
	}
	if limit.RequestsPerMinute <= 0 || limit.Burst <= 0 {
		return nil, false
	}

	key := bucketKey{client: clientID, class: class}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(float64(limit.RequestsPerMinute)/60), limit.Burst),
			limit:   limit,
		}
		l.buckets[key] = b
	}
	b.lastUsed = now
	return b, true
}

// Cleanup removes buckets idle for longer than MaxIdle and returns how many.
func (l *Limiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastUsed) > l.opts.MaxIdle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stats returns the number of live buckets per class.
func (l *Limiter) Stats() map[domain.EndpointClass]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[domain.EndpointClass]int)
	for key := range l.buckets {
		stats[key.class]++
	}
	return stats
}

// ClientID derives an approximate client identity from the peer address
// and user agent. Distinct clients may collide.
func ClientID(remoteAddr, userAgent string) string {
	sum := sha256.Sum256([]byte(remoteAddr + ":" + userAgent))
	return hex.EncodeToString(sum[:])[:16]
}
