// Package event provides a small typed publish/subscribe stream. Subscribe
// returns an unsubscribe closure so listeners are always removable on
// teardown.
package event

import "sync"

// Stream fans values out to the current set of subscribers. Publish calls
// handlers synchronously, in no particular order.
type Stream[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a closure that removes it. Calling the
// closure more than once is harmless.
func (s *Stream[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Publish delivers v to every subscriber registered at call time.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	handlers := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of active subscribers.
func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
