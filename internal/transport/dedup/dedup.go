// Package dedup collapses concurrent identical requests into a single
// network call whose result fans out to every caller.
package dedup

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/embedkit/relay/internal/core/domain"
)

// Deduplicator wraps singleflight keyed by request fingerprint. A waiter
// whose context is cancelled detaches without aborting the shared call.
type Deduplicator struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
}

// New creates an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{inflight: make(map[string]int)}
}

// Do runs fn for key unless an identical call is already in flight, in which
// case it waits for that call's result. shared reports whether the result
// came from another caller's execution.
func (d *Deduplicator) Do(ctx context.Context, key string, fn func() (*domain.Response, error)) (resp *domain.Response, shared bool, err error) {
	d.track(key, 1)
	defer d.track(key, -1)

	ch := d.group.DoChan(key, func() (any, error) {
		return fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		r, _ := res.Val.(*domain.Response)
		return r, res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Forget drops the in-flight entry for key so the next Do issues a fresh
// call. The executor calls this before re-entering the retry loop.
func (d *Deduplicator) Forget(key string) {
	d.group.Forget(key)
}

// Waiters returns how many callers are currently attached to key.
func (d *Deduplicator) Waiters(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[key]
}

func (d *Deduplicator) track(key string, delta int) {
	d.mu.Lock()
	d.inflight[key] += delta
	if d.inflight[key] <= 0 {
		delete(d.inflight, key)
	}
	d.mu.Unlock()
}
