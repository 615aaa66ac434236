// Package queue bounds transport concurrency with a priority scheduler.
//
// Waiters are ordered critical > high > normal > low, FIFO within a tier.
// Going offline pauses draining without dropping queued waiters.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/embedkit/relay/internal/core/domain"
)

// ErrClosed is returned to waiters when the scheduler shuts down.
var ErrClosed = errors.New("queue: scheduler closed")

type waiter struct {
	priority  domain.Priority
	seq       uint64
	ready     chan struct{}
	index     int
	cancelled bool
	granted   bool
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Scheduler hands out up to maxConcurrent execution slots, queuing overflow
// by priority.
type Scheduler struct {
	mu      sync.Mutex
	heap    waiterHeap
	seq     uint64
	slots   int
	max     int
	paused  bool
	closed  bool
	closeCh chan struct{}
}

// New creates a Scheduler with the given concurrency cap. A cap below one is
// treated as one.
func New(maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{max: maxConcurrent, closeCh: make(chan struct{})}
}

// Acquire blocks until an execution slot is free (or ctx ends) and returns a
// release closure. Release must be called exactly once; the abort path and
// the success path share it.
func (s *Scheduler) Acquire(ctx context.Context, priority domain.Priority) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.paused && s.slots < s.max && len(s.heap) == 0 {
		s.slots++
		s.mu.Unlock()
		return s.releaseFunc(), nil
	}

	w := &waiter{
		priority: priority,
		seq:      s.seq,
		ready:    make(chan struct{}),
	}
	s.seq++
	heap.Push(&s.heap, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return s.releaseFunc(), nil
	case <-s.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		s.mu.Lock()
		if w.granted {
			// The grant raced the cancellation; hand the slot back.
			s.slots--
			s.drainLocked()
			s.mu.Unlock()
			return nil, ctx.Err()
		}
		w.cancelled = true
		if w.index >= 0 {
			heap.Remove(&s.heap, w.index)
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Pause stops handing out slots to queued waiters. In-flight work keeps its
// slots.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables draining and immediately grants any free slots, used
// when connectivity recovers.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.drainLocked()
	s.mu.Unlock()
}

// Depth returns the number of queued waiters.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// InFlight returns the number of held slots.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

// Close rejects current and future waiters. Held slots may still be
// released afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
		s.heap = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.slots--
			if s.slots < 0 {
				s.slots = 0
			}
			s.drainLocked()
			s.mu.Unlock()
		})
	}
}

func (s *Scheduler) drainLocked() {
	for !s.paused && !s.closed && s.slots < s.max && len(s.heap) > 0 {
		w := heap.Pop(&s.heap).(*waiter)
		if w.cancelled {
			continue
		}
		w.granted = true
		s.slots++
		close(w.ready)
	}
}
