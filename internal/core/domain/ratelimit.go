package domain

import "time"

// EndpointClass groups routes that share a rate limit.
type EndpointClass string

// Endpoint classes.
const (
	EndpointUpload  EndpointClass = "upload"
	EndpointQuery   EndpointClass = "query"
	EndpointSearch  EndpointClass = "search"
	EndpointHealth  EndpointClass = "health"
	EndpointDefault EndpointClass = "default"
)

// AllEndpointClasses lists every endpoint class in a stable order.
func AllEndpointClasses() []EndpointClass {
	return []EndpointClass{EndpointUpload, EndpointQuery, EndpointSearch, EndpointHealth, EndpointDefault}
}

// String returns the string representation.
func (c EndpointClass) String() string {
	return string(c)
}

// RateLimit configures one token bucket.
type RateLimit struct {
	// RequestsPerMinute is the continuous refill rate.
	RequestsPerMinute int `validate:"gt=0"`

	// Burst is the bucket capacity.
	Burst int `validate:"gt=0"`
}

// DefaultRateLimits returns the built-in per-class limits.
func DefaultRateLimits() map[EndpointClass]RateLimit {
	return map[EndpointClass]RateLimit{
		EndpointUpload:  {RequestsPerMinute: 10, Burst: 3},
		EndpointQuery:   {RequestsPerMinute: 30, Burst: 10},
		EndpointSearch:  {RequestsPerMinute: 60, Burst: 15},
		EndpointHealth:  {RequestsPerMinute: 120, Burst: 30},
		EndpointDefault: {RequestsPerMinute: 60, Burst: 10},
	}
}

// RateInfo describes a client's bucket after a check.
type RateInfo struct {
	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of whole tokens left.
	Remaining int

	// ResetAt is when the next token becomes available.
	ResetAt time.Time

	// RetryAfter is set when the request was denied.
	RetryAfter time.Duration
}
