// Package track records active and historical requests and derives
// aggregate transport metrics from a bounded history.
package track

import (
	"sort"
	"sync"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

const (
	defaultHistorySize  = 1000
	defaultMetricWindow = 5 * time.Minute
)

// Metrics summarizes recent transport behavior.
type Metrics struct {
	ActiveRequests int                      `json:"active_requests"`
	TotalRequests  int64                    `json:"total_requests"`
	SuccessRate    float64                  `json:"success_rate"`
	P50Latency     time.Duration            `json:"p50_latency"`
	P95Latency     time.Duration            `json:"p95_latency"`
	P99Latency     time.Duration            `json:"p99_latency"`
	RequestsPerSec float64                  `json:"requests_per_sec"`
	ErrorsByType   map[domain.ErrorType]int `json:"errors_by_type"`
}

type active struct {
	req        *domain.Request
	state      domain.RequestState
	startedAt  time.Time
	retryCount int
}

// Tracker observes request transitions. Terminal entries are immutable and
// only ever appended to the ring-buffer history.
type Tracker struct {
	mu    sync.RWMutex
	clock func() time.Time

	actives map[string]*active

	history  []domain.RequestLogEntry
	head     int
	size     int
	capacity int

	total  int64
	window time.Duration
}

// Options configures a Tracker.
type Options struct {
	Clock func() time.Time
	// HistorySize bounds the ring buffer. Zero means 1000.
	HistorySize int
	// MetricWindow limits which entries feed derived metrics. Zero means 5m.
	MetricWindow time.Duration
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		clock:    opts.Clock,
		actives:  make(map[string]*active),
		capacity: opts.HistorySize,
		window:   opts.MetricWindow,
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.capacity <= 0 {
		t.capacity = defaultHistorySize
	}
	if t.window <= 0 {
		t.window = defaultMetricWindow
	}
	t.history = make([]domain.RequestLogEntry, t.capacity)
	return t
}

// Start registers a request entering the pipeline.
func (t *Tracker) Start(req *domain.Request) {
	t.mu.Lock()
	t.actives[req.ID] = &active{
		req:       req,
		state:     domain.RequestStateCreated,
		startedAt: t.clock(),
	}
	t.total++
	t.mu.Unlock()
}

// Transition moves an active request to a new lifecycle state. Retry
// re-entry into the queue bumps the retry counter.
func (t *Tracker) Transition(id string, state domain.RequestState) {
	t.mu.Lock()
	if a, ok := t.actives[id]; ok {
		if state == domain.RequestStateQueued && a.state == domain.RequestStateFailed {
			a.retryCount++
		}
		a.state = state
	}
	t.mu.Unlock()
}

// Complete records a successful terminal outcome and appends it to history.
func (t *Tracker) Complete(id string, statusCode int, fromCache bool) domain.RequestLogEntry {
	return t.finish(id, statusCode, "", "", fromCache, true)
}

// Fail records a failed terminal outcome and appends it to history.
func (t *Tracker) Fail(id string, errType domain.ErrorType, errMsg string) domain.RequestLogEntry {
	return t.finish(id, 0, errType, errMsg, false, false)
}

func (t *Tracker) finish(id string, statusCode int, errType domain.ErrorType, errMsg string, fromCache, success bool) domain.RequestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	entry := domain.RequestLogEntry{
		ID:         id,
		EndTime:    now,
		StatusCode: statusCode,
		ErrorType:  errType,
		Error:      errMsg,
		FromCache:  fromCache,
		Success:    success,
	}
	if a, ok := t.actives[id]; ok {
		entry.Method = a.req.Method
		entry.URL = a.req.URL
		entry.StartTime = a.startedAt
		entry.RetryCount = a.retryCount
		entry.Duration = now.Sub(a.startedAt)
		entry.DurationMS = entry.Duration.Milliseconds()
		delete(t.actives, id)
	} else {
		entry.StartTime = now
	}

	t.history[t.head] = entry
	t.head = (t.head + 1) % t.capacity
	if t.size < t.capacity {
		t.size++
	}
	return entry
}

// ActiveCount returns the number of non-terminal requests.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.actives)
}

// History returns up to n most recent terminal entries, newest first.
func (t *Tracker) History(n int) []domain.RequestLogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > t.size {
		n = t.size
	}
	out := make([]domain.RequestLogEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.head - 1 - i + t.capacity*2) % t.capacity
		out = append(out, t.history[idx])
	}
	return out
}

// Snapshot computes metrics over entries inside the metric window.
func (t *Tracker) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock()
	cutoff := now.Add(-t.window)

	var durations []time.Duration
	var successes, windowed int
	errorsByType := make(map[domain.ErrorType]int)

	for i := 0; i < t.size; i++ {
		idx := (t.head - 1 - i + t.capacity*2) % t.capacity
		e := t.history[idx]
		if e.EndTime.Before(cutoff) {
			continue
		}
		windowed++
		durations = append(durations, e.Duration)
		if e.Success {
			successes++
		} else if e.ErrorType != "" {
			errorsByType[e.ErrorType]++
		}
	}

	m := Metrics{
		ActiveRequests: len(t.actives),
		TotalRequests:  t.total,
		ErrorsByType:   errorsByType,
	}
	if windowed > 0 {
		m.SuccessRate = float64(successes) / float64(windowed)
		m.RequestsPerSec = float64(windowed) / t.window.Seconds()

		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		m.P50Latency = percentile(durations, 0.50)
		m.P95Latency = percentile(durations, 0.95)
		m.P99Latency = percentile(durations, 0.99)
	}
	return m
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
