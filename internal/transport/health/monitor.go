// Package health runs the periodic backend probe and the independent
// reconnection backoff state machine.
//
// Probe failures never propagate to request callers; they only update
// HealthState and fire health events. After the reconnection attempt limit
// is exhausted the monitor reports a persistent unhealthy state and stops
// retrying on its own; ForceHealthCheck remains available.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
	"github.com/embedkit/relay/internal/transport/event"
	"github.com/embedkit/relay/internal/transport/metrics"
	"github.com/embedkit/relay/internal/transport/netquality"
)

const (
	defaultCheckInterval   = 120 * time.Second
	defaultInitialDelay    = 2 * time.Second
	defaultInitialBackoff  = 1 * time.Second
	defaultMaxBackoff      = 30 * time.Second
	defaultMaxReconnection = 5
)

// Drainer is signalled when connectivity recovers so queued requests resume.
type Drainer interface {
	Resume()
	Pause()
}

// Options configures a Monitor.
type Options struct {
	Prober  netquality.Prober
	Drainer Drainer
	Logger  *slog.Logger
	Clock   func() time.Time

	// CheckInterval between periodic probes. Zero means 120s.
	CheckInterval time.Duration
	// InitialDelay before the first probe after Start. Zero means 2s.
	InitialDelay time.Duration
	// InitialBackoff seeds the reconnection schedule. Zero means 1s.
	InitialBackoff time.Duration
	// MaxBackoff caps the reconnection schedule. Zero means 30s.
	MaxBackoff time.Duration
	// MaxReconnectionAttempts bounds automatic reconnection. Zero means 5.
	MaxReconnectionAttempts int
}

// Monitor owns HealthState; it transitions only through the probe cycle.
type Monitor struct {
	prober  netquality.Prober
	drainer Drainer
	logger  *slog.Logger
	clock   func() time.Time

	checkInterval  time.Duration
	initialDelay   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxReconnects  int

	mu         sync.Mutex
	state      domain.HealthState
	reconnects int
	exhausted  bool
	started    bool

	changes *event.Stream[bool]

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewMonitor creates a Monitor; call Start to begin probing.
func NewMonitor(opts Options) *Monitor {
	m := &Monitor{
		prober:         opts.Prober,
		drainer:        opts.Drainer,
		logger:         opts.Logger,
		clock:          opts.Clock,
		checkInterval:  opts.CheckInterval,
		initialDelay:   opts.InitialDelay,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		maxReconnects:  opts.MaxReconnectionAttempts,
		changes:        event.NewStream[bool](),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.checkInterval <= 0 {
		m.checkInterval = defaultCheckInterval
	}
	if m.initialDelay <= 0 {
		m.initialDelay = defaultInitialDelay
	}
	if m.initialBackoff <= 0 {
		m.initialBackoff = defaultInitialBackoff
	}
	if m.maxBackoff <= 0 {
		m.maxBackoff = defaultMaxBackoff
	}
	if m.maxReconnects <= 0 {
		m.maxReconnects = defaultMaxReconnection
	}
	m.state = domain.HealthState{
		IsHealthy:      true,
		CurrentBackoff: m.initialBackoff,
	}
	return m
}

// OnChange subscribes to health transitions (true=healthy).
func (m *Monitor) OnChange(fn func(bool)) func() {
	return m.changes.Subscribe(fn)
}

// State returns a copy of the current health state.
func (m *Monitor) State() domain.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the probe loop. It is a no-op when called twice.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.loop(loopCtx)
}

// Stop cancels all monitor timers and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// ForceHealthCheck probes immediately. It also re-arms automatic
// reconnection if the attempt limit had been exhausted.
func (m *Monitor) ForceHealthCheck(ctx context.Context) domain.HealthState {
	m.mu.Lock()
	m.exhausted = false
	m.reconnects = 0
	m.mu.Unlock()

	m.check(ctx)

	// Nudge the loop so its timer realigns with the result.
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return m.State()
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(m.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-m.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.nextDelay())
		case <-timer.C:
			m.check(ctx)

			m.mu.Lock()
			exhausted := m.exhausted
			m.mu.Unlock()
			if exhausted {
				// No automatic timer; ForceHealthCheck re-arms via wake.
				continue
			}
			timer.Reset(m.nextDelay())
		}
	}
}

// nextDelay is the reconnection backoff while unhealthy, else the periodic
// interval.
func (m *Monitor) nextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsHealthy {
		return m.state.CurrentBackoff
	}
	return m.checkInterval
}

func (m *Monitor) check(ctx context.Context) {
	var err error
	if m.prober != nil {
		_, err = m.prober.Probe(ctx)
	}

	now := m.clock()

	m.mu.Lock()
	m.state.LastCheckAt = now
	wasHealthy := m.state.IsHealthy

	if err == nil {
		m.state.IsHealthy = true
		m.state.ConsecutiveFailures = 0
		m.state.CurrentBackoff = m.initialBackoff
		m.reconnects = 0
		m.exhausted = false
	} else {
		m.state.IsHealthy = false
		m.state.ConsecutiveFailures++
		m.reconnects++
		if m.reconnects >= m.maxReconnects {
			m.exhausted = true
		}
		if !wasHealthy {
			next := m.state.CurrentBackoff * 2
			if next > m.maxBackoff {
				next = m.maxBackoff
			}
			m.state.CurrentBackoff = next
		}
	}
	healthy := m.state.IsHealthy
	failures := m.state.ConsecutiveFailures
	exhausted := m.exhausted
	m.mu.Unlock()

	if healthy {
		metrics.BackendHealthy.Set(1)
	} else {
		metrics.BackendHealthy.Set(0)
	}

	if healthy && !wasHealthy {
		m.logger.Info("backend connection recovered")
		if m.drainer != nil {
			m.drainer.Resume()
		}
		m.changes.Publish(true)
	}
	if !healthy && wasHealthy {
		m.logger.Warn("backend health probe failed", "error", err, "consecutive_failures", failures)
		if m.drainer != nil {
			m.drainer.Pause()
		}
		m.changes.Publish(false)
	}
	if !healthy && exhausted {
		m.logger.Error("reconnection attempts exhausted, awaiting manual health check",
			"attempts", m.maxReconnects)
	}
}
