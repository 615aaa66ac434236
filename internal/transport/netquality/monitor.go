// Package netquality tracks connectivity probes and a rolling performance
// window, deriving a discrete quality level the executor uses to scale
// request timeouts.
package netquality

import (
	"context"
	"sync"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
	"github.com/embedkit/relay/internal/transport/event"
)

const (
	defaultMaxSamples     = 50
	defaultSampleWindow   = 5 * time.Minute
	defaultAssessInterval = 30 * time.Second
)

// Prober performs a lightweight connectivity check against the probe
// endpoint. Implementations return the observed latency.
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// ProbeResult is the outcome of a single connectivity test.
type ProbeResult struct {
	Success bool
	Latency time.Duration
}

type sample struct {
	at      time.Time
	latency time.Duration
	success bool
}

// Options configures a Monitor.
type Options struct {
	Prober Prober
	Clock  func() time.Time

	// MaxSamples bounds the rolling window. Zero means 50.
	MaxSamples int
	// SampleWindow prunes samples older than this. Zero means 5 minutes.
	SampleWindow time.Duration
	// AssessInterval throttles quality reassessment. Zero means 30 seconds.
	AssessInterval time.Duration
}

// Monitor maintains the rolling sample window and the derived NetworkStatus.
type Monitor struct {
	mu sync.RWMutex

	prober         Prober
	clock          func() time.Time
	maxSamples     int
	sampleWindow   time.Duration
	assessInterval time.Duration

	samples             []sample
	consecutiveFailures int
	lastProbeOK         bool
	everProbed          bool
	lastAssess          time.Time
	status              domain.NetworkStatus

	changes *event.Stream[domain.NetworkStatus]
}

// NewMonitor creates a Monitor. The prober may be nil when only Record-fed
// samples drive the assessment.
func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		prober:         opts.Prober,
		clock:          opts.Clock,
		maxSamples:     opts.MaxSamples,
		sampleWindow:   opts.SampleWindow,
		assessInterval: opts.AssessInterval,
		changes:        event.NewStream[domain.NetworkStatus](),
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.maxSamples <= 0 {
		m.maxSamples = defaultMaxSamples
	}
	if m.sampleWindow <= 0 {
		m.sampleWindow = defaultSampleWindow
	}
	if m.assessInterval <= 0 {
		m.assessInterval = defaultAssessInterval
	}
	m.status = domain.NetworkStatus{
		IsOnline:    true,
		Quality:     domain.QualityGood,
		LastChanged: m.clock(),
	}
	m.lastProbeOK = true
	return m
}

// OnChange subscribes to status transitions. The handler fires only when the
// quality level or online flag actually changes.
func (m *Monitor) OnChange(fn func(domain.NetworkStatus)) func() {
	return m.changes.Subscribe(fn)
}

// Record feeds one request outcome into the rolling window.
func (m *Monitor) Record(latency time.Duration, success bool) {
	m.mu.Lock()
	now := m.clock()
	m.samples = append(m.samples, sample{at: now, latency: latency, success: success})
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[len(m.samples)-m.maxSamples:]
	}
	m.pruneLocked(now)
	m.mu.Unlock()
}

// TestConnection runs the injected prober once. Failures increment the
// consecutive-failure counter; successes reset it.
func (m *Monitor) TestConnection(ctx context.Context) ProbeResult {
	if m.prober == nil {
		return ProbeResult{Success: true}
	}

	latency, err := m.prober.Probe(ctx)
	res := ProbeResult{Success: err == nil, Latency: latency}

	m.mu.Lock()
	m.everProbed = true
	m.lastProbeOK = res.Success
	if res.Success {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	now := m.clock()
	m.samples = append(m.samples, sample{at: now, latency: latency, success: res.Success})
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[len(m.samples)-m.maxSamples:]
	}
	m.pruneLocked(now)
	m.mu.Unlock()

	// A probe is fresh evidence; reassess regardless of the throttle.
	m.assess(true)
	return res
}

// SetOnline applies an environment online/offline signal.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.status.IsOnline != online
	m.status.IsOnline = online
	m.mu.Unlock()
	if changed {
		m.assess(true)
	}
}

// AssessQuality recomputes the quality level, throttled to once per assess
// interval unless forced by a probe or online transition. It returns the
// current level either way.
func (m *Monitor) AssessQuality() domain.Quality {
	return m.assess(false)
}

// Status returns a copy of the current network status.
func (m *Monitor) Status() domain.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// TimeoutMultiplier maps the current quality to the per-attempt timeout
// scale: 1.0 for good or better, 1.5 for fair, 2.0 for poor or offline.
func (m *Monitor) TimeoutMultiplier() float64 {
	switch m.Status().Quality {
	case domain.QualityFair:
		return 1.5
	case domain.QualityPoor, domain.QualityOffline:
		return 2.0
	default:
		return 1.0
	}
}

func (m *Monitor) assess(force bool) domain.Quality {
	m.mu.Lock()

	now := m.clock()
	if !force && now.Sub(m.lastAssess) < m.assessInterval {
		q := m.status.Quality
		m.mu.Unlock()
		return q
	}
	m.lastAssess = now
	m.pruneLocked(now)

	quality := m.deriveLocked()
	prev := m.status
	m.status.Quality = quality
	var emitted *domain.NetworkStatus
	if prev.Quality != quality || prev.IsOnline != m.status.IsOnline {
		m.status.LastChanged = now
		snapshot := m.status
		emitted = &snapshot
	}
	m.mu.Unlock()

	if emitted != nil {
		m.changes.Publish(*emitted)
	}
	return quality
}

// deriveLocked combines probe state, consecutive failures, window success
// rate and mean latency into a discrete level. It also refreshes the RTT
// estimate from the window mean.
func (m *Monitor) deriveLocked() domain.Quality {
	var ok int
	var total time.Duration
	for _, s := range m.samples {
		if s.success {
			ok++
		}
		total += s.latency
	}
	var meanLatency time.Duration
	if len(m.samples) > 0 {
		meanLatency = total / time.Duration(len(m.samples))
		m.status.RTT = meanLatency
	}

	if !m.status.IsOnline {
		return domain.QualityOffline
	}
	if m.everProbed && !m.lastProbeOK {
		return domain.QualityPoor
	}
	if m.consecutiveFailures >= 3 {
		return domain.QualityPoor
	}
	if len(m.samples) == 0 {
		return domain.QualityGood
	}

	successRate := float64(ok) / float64(len(m.samples))

	switch {
	case successRate < 0.7:
		return domain.QualityPoor
	case successRate >= 0.95 && meanLatency < 100*time.Millisecond:
		return domain.QualityExcellent
	case successRate >= 0.85 && meanLatency < 300*time.Millisecond:
		return domain.QualityGood
	default:
		return domain.QualityFair
	}
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.sampleWindow)
	idx := 0
	for idx < len(m.samples) && !m.samples[idx].at.After(cutoff) {
		idx++
	}
	if idx > 0 {
		m.samples = m.samples[idx:]
	}
}
