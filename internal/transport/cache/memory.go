package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

const defaultSweepInterval = time.Minute

type entry struct {
	resp      *domain.Response
	expiresAt time.Time
}

// MemoryStore is an in-process TTL cache with a periodic sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time

	hits      int64
	misses    int64
	evictions int64

	sweepStop chan struct{}
	stopOnce  sync.Once
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	Clock func() time.Time
	// SweepInterval controls expired-entry collection. Zero means one
	// minute; negative disables the sweeper (expiry still applies on read).
	SweepInterval time.Duration
}

// NewMemoryStore creates a MemoryStore and starts its sweep timer.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]entry),
		clock:     opts.Clock,
		sweepStop: make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	interval := opts.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	if interval > 0 {
		go s.sweepLoop(interval)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !e.expiresAt.After(s.clock()) {
		delete(s.entries, key)
		s.evictions++
		s.misses++
		return nil, false
	}
	s.hits++
	return e.resp, true
}

func (s *MemoryStore) Set(_ context.Context, key string, resp *domain.Response, ttl time.Duration) {
	if ttl <= 0 || resp == nil {
		return
	}
	s.mu.Lock()
	s.entries[key] = entry{resp: resp, expiresAt: s.clock().Add(ttl)}
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *MemoryStore) Clear(_ context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if pattern == "" || strings.HasPrefix(k, pattern) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Entries:   len(s.entries),
	}
}

// Close stops the sweep timer. The store remains usable afterwards.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.sweepStop) })
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	now := s.clock()
	for k, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, k)
			s.evictions++
		}
	}
	s.mu.Unlock()
}
