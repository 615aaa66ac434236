package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clk *fakeClock) *MemoryStore {
	return NewMemoryStore(MemoryOptions{Clock: clk.Now, SweepInterval: -1})
}

func TestMemoryStoreGetSet(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	resp := &domain.Response{RequestID: "r1", StatusCode: 200, Body: []byte(`{"ok":true}`)}
	s.Set(ctx, "k1", resp, 5*time.Minute)

	got, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.RequestID != "r1" || got.StatusCode != 200 {
		t.Errorf("got %+v", got)
	}

	if _, ok := s.Get(ctx, "absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k1", &domain.Response{StatusCode: 200}, time.Minute)

	clk.Advance(59 * time.Second)
	if _, ok := s.Get(ctx, "k1"); !ok {
		t.Fatal("entry expired early")
	}

	clk.Advance(2 * time.Second)
	if _, ok := s.Get(ctx, "k1"); ok {
		t.Fatal("entry should have expired")
	}

	stats := s.Stats()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestMemoryStoreZeroTTLNotStored(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k1", &domain.Response{StatusCode: 200}, 0)
	if _, ok := s.Get(ctx, "k1"); ok {
		t.Fatal("zero TTL must not be cached")
	}
}

func TestMemoryStoreClearByPrefix(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	resp := &domain.Response{StatusCode: 200}
	s.Set(ctx, "tenant-a:1", resp, time.Minute)
	s.Set(ctx, "tenant-a:2", resp, time.Minute)
	s.Set(ctx, "tenant-b:1", resp, time.Minute)

	if removed := s.Clear(ctx, "tenant-a:"); removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if _, ok := s.Get(ctx, "tenant-b:1"); !ok {
		t.Error("unrelated entry was removed")
	}

	if removed := s.Clear(ctx, ""); removed != 1 {
		t.Fatalf("full clear removed %d, want 1", removed)
	}
	if s.Stats().Entries != 0 {
		t.Errorf("entries = %d after full clear", s.Stats().Entries)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k", &domain.Response{StatusCode: 200}, time.Minute)
	s.Get(ctx, "k")
	s.Get(ctx, "k")
	s.Get(ctx, "missing")

	stats := s.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Entries != 1 {
		t.Fatalf("stats = %+v, want hits=2 misses=1 entries=1", stats)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(clk)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k1", &domain.Response{StatusCode: 200}, time.Minute)
	s.Set(ctx, "k2", &domain.Response{StatusCode: 200}, time.Hour)
	clk.Advance(2 * time.Minute)

	s.sweep()

	stats := s.Stats()
	if stats.Entries != 1 || stats.Evictions != 1 {
		t.Fatalf("stats after sweep = %+v, want entries=1 evictions=1", stats)
	}
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore(MemoryOptions{})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
