// Package cache stores idempotent responses keyed by request fingerprint.
//
// Store failures are never fatal: a read error is a miss, a write error is
// dropped. Both implementations keep their own hit/miss counters.
package cache

import (
	"context"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

// Stats summarizes cache effectiveness.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Store is the response cache abstraction. Implementations must treat
// expired entries as absent.
type Store interface {
	Get(ctx context.Context, key string) (*domain.Response, bool)
	Set(ctx context.Context, key string, resp *domain.Response, ttl time.Duration)
	Delete(ctx context.Context, key string)

	// Clear removes entries whose key starts with pattern; an empty pattern
	// removes everything. It returns the number of removed entries when the
	// backend can count them.
	Clear(ctx context.Context, pattern string) int

	Stats() Stats
	Close() error
}
