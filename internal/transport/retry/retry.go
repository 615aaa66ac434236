// Package retry decides whether and when a classified failure is retried.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

// MaxDelay caps every computed backoff, jitter included.
const MaxDelay = 30 * time.Second

// Policy holds per-error-type retry limits and backoff bases.
type Policy struct {
	// MaxAttempts is the number of retries allowed per error type, not
	// counting the initial attempt. Types absent from the map get zero.
	MaxAttempts map[domain.ErrorType]int

	// BaseDelay seeds the exponential schedule per error type.
	BaseDelay map[domain.ErrorType]time.Duration

	// MaxDelay caps the computed delay. Zero means the package default.
	MaxDelay time.Duration

	// JitterFraction scales the uniform jitter added on top of the
	// exponential delay. Zero means the default of 0.1.
	JitterFraction float64

	// Rand returns a float64 in [0,1). Nil means math/rand; tests inject a
	// deterministic source.
	Rand func() float64
}

// DefaultPolicy returns the standard limits and bases.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: map[domain.ErrorType]int{
			domain.ErrorTypeNetwork:   3,
			domain.ErrorTypeTimeout:   3,
			domain.ErrorTypeRateLimit: 2,
			domain.ErrorTypeServer:    3,
			domain.ErrorTypeClient:    0,
			domain.ErrorTypeUnknown:   1,
		},
		BaseDelay: map[domain.ErrorType]time.Duration{
			domain.ErrorTypeNetwork:   1 * time.Second,
			domain.ErrorTypeTimeout:   2 * time.Second,
			domain.ErrorTypeRateLimit: 5 * time.Second,
			domain.ErrorTypeServer:    2 * time.Second,
			domain.ErrorTypeUnknown:   1 * time.Second,
		},
	}
}

// ShouldRetry reports whether another attempt is allowed after `attempt`
// failed tries of the given classification. Non-retryable classifications
// never consume retry budget.
func (p Policy) ShouldRetry(c domain.Classification, attempt int) bool {
	if !c.Retryable {
		return false
	}
	return attempt <= p.MaxAttempts[c.Type]
}

// BackoffDelay computes the wait before retry number `attempt` (1-based):
// base * 2^(attempt-1) plus uniform jitter in [0, jitterFraction*exp),
// capped at MaxDelay. The result is monotonically non-decreasing in attempt
// up to the cap.
func (p Policy) BackoffDelay(attempt int, t domain.ErrorType) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base, ok := p.BaseDelay[t]
	if !ok {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = MaxDelay
	}
	jitterFrac := p.JitterFraction
	if jitterFrac <= 0 {
		jitterFrac = 0.1
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}

	exp := float64(base) * math.Pow(2, float64(attempt-1))
	if exp > float64(maxDelay) {
		return maxDelay
	}

	delay := exp + random()*jitterFrac*exp
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
