package retry

import (
	"testing"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

func retryable(t domain.ErrorType) domain.Classification {
	return domain.Classification{Type: t, Retryable: true}
}

func TestShouldRetryLimits(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		typ   domain.ErrorType
		limit int
	}{
		{domain.ErrorTypeNetwork, 3},
		{domain.ErrorTypeTimeout, 3},
		{domain.ErrorTypeRateLimit, 2},
		{domain.ErrorTypeServer, 3},
		{domain.ErrorTypeUnknown, 1},
	}
	for _, tc := range cases {
		// Retries are granted after failed attempts 1..limit, so the initial
		// attempt plus `limit` retries run before the budget is spent.
		for failed := 1; failed <= tc.limit; failed++ {
			if !p.ShouldRetry(retryable(tc.typ), failed) {
				t.Errorf("%s: retry after %d failed attempts should be allowed", tc.typ, failed)
			}
		}
		if p.ShouldRetry(retryable(tc.typ), tc.limit+1) {
			t.Errorf("%s: should stop after %d failed attempts", tc.typ, tc.limit+1)
		}
	}
}

func TestShouldRetryNonRetryable(t *testing.T) {
	p := DefaultPolicy()
	c := domain.Classification{Type: domain.ErrorTypeClient, Retryable: false}
	if p.ShouldRetry(c, 1) {
		t.Fatal("client errors must never retry")
	}
	// Even a retryable flag doesn't help a type with a zero budget.
	if p.ShouldRetry(retryable(domain.ErrorTypeClient), 1) {
		t.Fatal("client error type has zero retry budget")
	}
}

func TestBackoffDeterministicSchedule(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = func() float64 { return 0 } // no jitter

	cases := []struct {
		typ  domain.ErrorType
		want []time.Duration
	}{
		{domain.ErrorTypeNetwork, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}},
		{domain.ErrorTypeRateLimit, []time.Duration{5 * time.Second, 10 * time.Second}},
		{domain.ErrorTypeServer, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}},
	}
	for _, tc := range cases {
		for i, want := range tc.want {
			got := p.BackoffDelay(i+1, tc.typ)
			if got != want {
				t.Errorf("%s attempt %d: got %v, want %v", tc.typ, i+1, got, want)
			}
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = func() float64 { return 0.999999 }

	got := p.BackoffDelay(1, domain.ErrorTypeNetwork)
	if got < time.Second || got >= 1100*time.Millisecond {
		t.Fatalf("jittered delay %v outside [1s, 1.1s)", got)
	}
}

func TestBackoffMonotoneNonDecreasing(t *testing.T) {
	p := DefaultPolicy()
	// Worst case for monotonicity: max jitter on attempt n, zero on n+1.
	high := true
	p.Rand = func() float64 {
		high = !high
		if high {
			return 0.999999
		}
		return 0
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.BackoffDelay(attempt, domain.ErrorTypeTimeout)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = func() float64 { return 0.999999 }

	for attempt := 5; attempt <= 20; attempt++ {
		d := p.BackoffDelay(attempt, domain.ErrorTypeRateLimit)
		if d > MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, MaxDelay)
		}
	}
	if d := p.BackoffDelay(20, domain.ErrorTypeRateLimit); d != MaxDelay {
		t.Errorf("deep attempt should saturate at cap, got %v", d)
	}
}

func TestBackoffUnknownTypeDefaultsBase(t *testing.T) {
	p := Policy{Rand: func() float64 { return 0 }}
	if got := p.BackoffDelay(1, domain.ErrorType("bogus")); got != time.Second {
		t.Fatalf("got %v, want 1s default base", got)
	}
}

func TestBackoffClampsBadAttempt(t *testing.T) {
	p := DefaultPolicy()
	p.Rand = func() float64 { return 0 }
	if got := p.BackoffDelay(0, domain.ErrorTypeNetwork); got != time.Second {
		t.Fatalf("attempt 0 should clamp to first delay, got %v", got)
	}
}
