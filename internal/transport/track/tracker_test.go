package track

import (
	"fmt"
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

func testRequest(id string) *domain.Request {
	return &domain.Request{ID: id, Method: "POST", URL: "https://api.example.com/api/chat"}
}

func TestTrackerLifecycle(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now})

	tr.Start(testRequest("r1"))
	if tr.ActiveCount() != 1 {
		t.Fatalf("active = %d, want 1", tr.ActiveCount())
	}

	tr.Transition("r1", domain.RequestStateQueued)
	tr.Transition("r1", domain.RequestStateExecuting)
	clk.Advance(250 * time.Millisecond)

	entry := tr.Complete("r1", 200, false)
	if tr.ActiveCount() != 0 {
		t.Fatalf("active = %d after complete, want 0", tr.ActiveCount())
	}
	if !entry.Success || entry.StatusCode != 200 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Duration != 250*time.Millisecond || entry.DurationMS != 250 {
		t.Errorf("duration = %v / %dms, want 250ms", entry.Duration, entry.DurationMS)
	}
	if entry.Method != "POST" || entry.URL != "https://api.example.com/api/chat" {
		t.Errorf("request fields not carried: %+v", entry)
	}
}

func TestTrackerRetryCountOnlyOnFailedRequeue(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now})

	tr.Start(testRequest("r1"))
	// Normal first pass: created -> queued -> executing. No retry counted.
	tr.Transition("r1", domain.RequestStateQueued)
	tr.Transition("r1", domain.RequestStateExecuting)
	// Two retry cycles: failed -> queued -> executing.
	for i := 0; i < 2; i++ {
		tr.Transition("r1", domain.RequestStateFailed)
		tr.Transition("r1", domain.RequestStateQueued)
		tr.Transition("r1", domain.RequestStateExecuting)
	}

	entry := tr.Complete("r1", 200, false)
	if entry.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", entry.RetryCount)
	}
}

func TestTrackerFail(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now})

	tr.Start(testRequest("r1"))
	entry := tr.Fail("r1", domain.ErrorTypeNetwork, "connection refused")

	if entry.Success {
		t.Error("failed entry marked success")
	}
	if entry.ErrorType != domain.ErrorTypeNetwork || entry.Error != "connection refused" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now, HistorySize: 3})

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("r%d", i)
		tr.Start(testRequest(id))
		tr.Complete(id, 200, false)
	}

	got := tr.History(0)
	if len(got) != 3 {
		t.Fatalf("history len = %d, want 3 (ring capacity)", len(got))
	}
	want := []string{"r5", "r4", "r3"}
	for i, e := range got {
		if e.ID != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, e.ID, want[i])
		}
	}

	got = tr.History(2)
	if len(got) != 2 || got[0].ID != "r5" {
		t.Fatalf("History(2) = %v", got)
	}
}

func TestSnapshotMetrics(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now})

	// Nine successes with increasing latency, one network failure.
	for i := 1; i <= 9; i++ {
		id := fmt.Sprintf("ok%d", i)
		tr.Start(testRequest(id))
		clk.Advance(time.Duration(i*100) * time.Millisecond)
		tr.Complete(id, 200, false)
	}
	tr.Start(testRequest("bad"))
	tr.Fail("bad", domain.ErrorTypeNetwork, "connection reset")

	m := tr.Snapshot()
	if m.TotalRequests != 10 {
		t.Errorf("total = %d, want 10", m.TotalRequests)
	}
	if m.SuccessRate != 0.9 {
		t.Errorf("success rate = %v, want 0.9", m.SuccessRate)
	}
	if m.ErrorsByType[domain.ErrorTypeNetwork] != 1 {
		t.Errorf("errors = %v", m.ErrorsByType)
	}
	if m.P50Latency <= 0 || m.P95Latency < m.P50Latency || m.P99Latency < m.P95Latency {
		t.Errorf("percentiles not ordered: p50=%v p95=%v p99=%v", m.P50Latency, m.P95Latency, m.P99Latency)
	}
	if m.RequestsPerSec <= 0 {
		t.Errorf("rps = %v, want > 0", m.RequestsPerSec)
	}
}

func TestSnapshotWindowExcludesOldEntries(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now, MetricWindow: time.Minute})

	tr.Start(testRequest("old"))
	tr.Fail("old", domain.ErrorTypeServer, "boom")

	clk.Advance(2 * time.Minute)

	tr.Start(testRequest("fresh"))
	tr.Complete("fresh", 200, false)

	m := tr.Snapshot()
	if m.SuccessRate != 1.0 {
		t.Fatalf("success rate = %v, want 1.0 (old failure outside window)", m.SuccessRate)
	}
	if len(m.ErrorsByType) != 0 {
		t.Errorf("errors = %v, want empty", m.ErrorsByType)
	}
}

func TestFinishUnknownRequestStillRecorded(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(Options{Clock: clk.Now})

	entry := tr.Complete("ghost", 200, true)
	if entry.ID != "ghost" || !entry.FromCache {
		t.Fatalf("entry = %+v", entry)
	}
	if len(tr.History(0)) != 1 {
		t.Fatal("entry not appended to history")
	}
}
