package domain

import "time"

// CircuitState is the state of a circuit breaker.
type CircuitState int

// Circuit breaker states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the string representation.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RetryPolicy configures exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           `validate:"gte=1"`
	BaseDelay   time.Duration `validate:"gte=0"`
	MaxDelay    time.Duration `validate:"gtefield=BaseDelay"`
	Multiplier  float64       `validate:"gte=1"`
	Jitter      bool
}

// DefaultRetryPolicy returns the built-in retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// BreakerPolicy configures a circuit breaker.
type BreakerPolicy struct {
	FailureThreshold int           `validate:"gte=1"`
	RecoveryTimeout  time.Duration `validate:"gt=0"`
	SuccessThreshold int           `validate:"gte=1"`

	// Timeout bounds every call made through the breaker.
	Timeout time.Duration `validate:"gte=0"`
}

// DefaultBreakerPolicy returns the built-in breaker policy.
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name          string       `json:"name"`
	State         CircuitState `json:"state"`
	Failures      int          `json:"failures"`
	Successes     int          `json:"successes"`
	LastFailureAt time.Time    `json:"last_failure_at,omitempty"`
}
