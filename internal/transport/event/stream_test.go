package event

import (
	"sync"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := NewStream[int]()

	var a, b []int
	s.Subscribe(func(v int) { a = append(a, v) })
	s.Subscribe(func(v int) { b = append(b, v) })

	s.Publish(1)
	s.Publish(2)

	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("got %d/%d deliveries, want 2/2", len(a), len(b))
	}
	if a[0] != 1 || a[1] != 2 {
		t.Errorf("delivery order wrong: %v", a)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := NewStream[string]()

	var got []string
	unsub := s.Subscribe(func(v string) { got = append(got, v) })

	s.Publish("first")
	unsub()
	s.Publish("second")

	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("got %v, want [first]", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after unsubscribe, want 0", s.Len())
	}

	// Double-unsubscribe must be a no-op.
	unsub()
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	s := NewStream[int]()

	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		s.Subscribe(func(int) {
			mu.Lock()
			total++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Publish(1)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if total != 8*16 {
		t.Fatalf("got %d deliveries, want %d", total, 8*16)
	}
}
