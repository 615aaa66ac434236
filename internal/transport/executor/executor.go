// Package executor orchestrates the resilient send path: cache and dedup
// consultation, priority-bounded execution with quality-adapted timeouts,
// and classification-driven retries with exponential backoff.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/embedkit/relay/internal/core/domain"
	"github.com/embedkit/relay/internal/transport/cache"
	"github.com/embedkit/relay/internal/transport/classify"
	"github.com/embedkit/relay/internal/transport/dedup"
	"github.com/embedkit/relay/internal/transport/event"
	"github.com/embedkit/relay/internal/transport/metrics"
	"github.com/embedkit/relay/internal/transport/netquality"
	"github.com/embedkit/relay/internal/transport/queue"
	"github.com/embedkit/relay/internal/transport/retry"
	"github.com/embedkit/relay/internal/transport/track"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultCacheTTL       = 5 * time.Minute
)

// Options wires the executor's collaborators. Network is required;
// everything else gets a working default.
type Options struct {
	Network   NetworkClient
	Quality   *netquality.Monitor
	Cache     cache.Store
	Scheduler *queue.Scheduler
	Tracker   *track.Tracker
	Policy    retry.Policy
	Logger    *slog.Logger
	Clock     func() time.Time

	// Sleep waits for backoff delays; tests inject a recorder.
	Sleep func(context.Context, time.Duration) error

	// CacheTTL for idempotent responses. Zero means 5 minutes.
	CacheTTL time.Duration
	// DefaultTimeout applies to requests that don't set one. Zero means 30s.
	DefaultTimeout time.Duration
}

// Executor owns requests from submission until terminal state.
type Executor struct {
	network   NetworkClient
	quality   *netquality.Monitor
	cache     cache.Store
	dedup     *dedup.Deduplicator
	scheduler *queue.Scheduler
	tracker   *track.Tracker
	policy    retry.Policy
	logger    *slog.Logger
	clock     func() time.Time
	sleep     func(context.Context, time.Duration) error

	cacheTTL       time.Duration
	defaultTimeout time.Duration

	// Terminal transitions, for event fan-out and archival.
	Completed *event.Stream[domain.RequestLogEntry]
	Failed    *event.Stream[domain.RequestLogEntry]
	Started   *event.Stream[domain.Request]
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		network:        opts.Network,
		quality:        opts.Quality,
		cache:          opts.Cache,
		dedup:          dedup.New(),
		scheduler:      opts.Scheduler,
		tracker:        opts.Tracker,
		policy:         opts.Policy,
		logger:         opts.Logger,
		clock:          opts.Clock,
		sleep:          opts.Sleep,
		cacheTTL:       opts.CacheTTL,
		defaultTimeout: opts.DefaultTimeout,
		Completed:      event.NewStream[domain.RequestLogEntry](),
		Failed:         event.NewStream[domain.RequestLogEntry](),
		Started:        event.NewStream[domain.Request](),
	}
	if e.quality == nil {
		e.quality = netquality.NewMonitor(netquality.Options{})
	}
	if e.cache == nil {
		e.cache = cache.NewMemoryStore(cache.MemoryOptions{})
	}
	if e.scheduler == nil {
		e.scheduler = queue.New(4)
	}
	if e.tracker == nil {
		e.tracker = track.NewTracker(track.Options{})
	}
	if len(e.policy.MaxAttempts) == 0 {
		e.policy = retry.DefaultPolicy()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	if e.cacheTTL <= 0 {
		e.cacheTTL = defaultCacheTTL
	}
	if e.defaultTimeout <= 0 {
		e.defaultTimeout = defaultRequestTimeout
	}
	return e
}

// Send pushes one request through the full pipeline and blocks until a
// terminal result. On failure it returns a *TerminalError carrying the last
// classification, the sanitized user message and the attempt count.
func (e *Executor) Send(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = e.clock()
	}
	if req.Timeout <= 0 {
		req.Timeout = e.defaultTimeout
	}

	e.tracker.Start(req)
	e.Started.Publish(*req)

	key := Fingerprint(req)

	for attempt := 1; ; attempt++ {
		resp, shared, err := e.dedup.Do(ctx, key, func() (*domain.Response, error) {
			return e.executeOnce(ctx, req)
		})

		if err == nil {
			if shared {
				metrics.DedupShared.Inc()
			}
			entry := e.tracker.Complete(req.ID, resp.StatusCode, resp.FromCache)
			e.Completed.Publish(entry)
			e.observeTerminal(req, "success", "", entry.Duration)
			return resp, nil
		}

		// Caller cancellation is never retried; surface the context error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, e.fail(req, classify.Classify(ctxErr, nil), attempt, ctxErr)
		}

		c, underlying := unpackAttempt(err)

		if !e.policy.ShouldRetry(c, attempt) {
			return nil, e.fail(req, c, attempt, underlying)
		}

		delay := e.policy.BackoffDelay(attempt, c.Type)
		metrics.RetriesTotal.WithLabelValues(string(c.Type)).Inc()
		e.logger.Debug("retrying request",
			"request_id", req.ID,
			"attempt", attempt,
			"error_type", c.Type,
			"delay", delay,
		)

		// Release the dedup entry so the retry issues a fresh call.
		e.dedup.Forget(key)
		e.tracker.Transition(req.ID, domain.RequestStateQueued)

		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.fail(req, classify.Classify(err, nil), attempt, err)
		}
	}
}

// executeOnce runs a single attempt: cache lookup, slot acquisition, the
// network call, and cache population.
func (e *Executor) executeOnce(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	key := Fingerprint(req)

	if req.Idempotent() {
		if cached, ok := e.cache.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			hit := *cached
			hit.FromCache = true
			hit.RequestID = req.ID
			return &hit, nil
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	e.tracker.Transition(req.ID, domain.RequestStateQueued)
	metrics.QueueDepth.Set(float64(e.scheduler.Depth()))

	release, err := e.scheduler.Acquire(ctx, req.Priority)
	if err != nil {
		return nil, &attemptError{classification: classify.Classify(err, nil), err: err}
	}
	defer release()

	e.tracker.Transition(req.ID, domain.RequestStateExecuting)
	metrics.QueueDepth.Set(float64(e.scheduler.Depth()))

	timeout := time.Duration(float64(req.Timeout) * e.quality.TimeoutMultiplier())
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock()
	resp, err := e.network.Do(attemptCtx, req)
	latency := e.clock().Sub(start)

	success := err == nil && resp != nil && resp.StatusCode < 400
	e.quality.Record(latency, success)

	if err != nil {
		e.tracker.Transition(req.ID, domain.RequestStateFailed)
		return nil, &attemptError{classification: classify.Classify(err, nil), err: err}
	}
	if !success {
		e.tracker.Transition(req.ID, domain.RequestStateFailed)
		aerr := &attemptError{
			classification: classify.Classify(nil, resp),
			resp:           resp,
			err:            fmt.Errorf("backend returned status %d", resp.StatusCode),
		}
		return nil, aerr
	}

	e.tracker.Transition(req.ID, domain.RequestStateSucceeded)
	resp.RequestID = req.ID
	resp.Duration = latency

	if req.Idempotent() {
		e.cache.Set(ctx, key, resp, e.cacheTTL)
	}
	return resp, nil
}

func (e *Executor) fail(req *domain.Request, c domain.Classification, attempts int, underlying error) error {
	entry := e.tracker.Fail(req.ID, c.Type, errString(underlying))
	e.Failed.Publish(entry)
	e.observeTerminal(req, "error", string(c.Type), entry.Duration)

	e.logger.Warn("request failed terminally",
		"request_id", req.ID,
		"url", req.URL,
		"attempts", attempts,
		"error_type", c.Type,
		"error", underlying,
	)
	return &TerminalError{
		Classification: c,
		UserMessage:    c.UserMessage,
		Attempts:       attempts,
		Err:            underlying,
	}
}

func (e *Executor) observeTerminal(req *domain.Request, outcome, errType string, duration time.Duration) {
	tenant := req.Metadata.TenantHash
	if tenant == "" {
		tenant = "unknown"
	}
	metrics.RequestsTotal.WithLabelValues(tenant, outcome).Inc()
	metrics.RequestLatency.WithLabelValues(tenant).Observe(duration.Seconds())
	if errType != "" {
		metrics.RequestErrorsTotal.WithLabelValues(tenant, errType).Inc()
	}
	metrics.NetworkQuality.Set(metrics.QualityLevel(string(e.quality.Status().Quality)))
}

// Scheduler exposes the scheduler for pause/resume wiring.
func (e *Executor) Scheduler() *queue.Scheduler {
	return e.scheduler
}

// Cache exposes the response cache for admin operations.
func (e *Executor) Cache() cache.Store {
	return e.cache
}

// Tracker exposes the tracker for metric snapshots.
func (e *Executor) Tracker() *track.Tracker {
	return e.tracker
}

func unpackAttempt(err error) (domain.Classification, error) {
	var ae *attemptError
	if errors.As(err, &ae) {
		underlying := ae.err
		if underlying == nil {
			underlying = err
		}
		return ae.classification, underlying
	}
	return classify.Classify(err, nil), err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
