// Package transport assembles the resilient request layer behind one
// explicit Client. There is no package-level singleton: construct a Client,
// pass it by reference, and Close it on teardown.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embedkit/relay/internal/core/domain"
	"github.com/embedkit/relay/internal/transport/cache"
	"github.com/embedkit/relay/internal/transport/executor"
	"github.com/embedkit/relay/internal/transport/health"
	"github.com/embedkit/relay/internal/transport/netquality"
	"github.com/embedkit/relay/internal/transport/queue"
	"github.com/embedkit/relay/internal/transport/retry"
	"github.com/embedkit/relay/internal/transport/track"
)

// Options configures a Client. BackendURL is required unless every request
// carries an absolute URL.
type Options struct {
	BackendURL string
	ChatPath   string
	ProbeURL   string

	// Network overrides the default HTTP network client; tests inject fakes.
	Network executor.NetworkClient
	// Prober overrides the connectivity probe. Defaults to the HTTP client.
	Prober netquality.Prober
	// CacheStore overrides the in-memory response cache (e.g. Redis-backed).
	CacheStore cache.Store

	Logger *slog.Logger
	Clock  func() time.Time

	MaxConcurrentRequests int
	CacheTTL              time.Duration
	HistorySize           int
	RequestTimeout        time.Duration
	HealthCheckInterval   time.Duration
	MaxReconnectAttempts  int
}

// Client is the public surface of the resilient transport.
type Client struct {
	opts    Options
	logger  *slog.Logger
	clock   func() time.Time
	exec    *executor.Executor
	quality *netquality.Monitor
	healthM *health.Monitor
	sched   *queue.Scheduler
	tracker *track.Tracker
	cache   cache.Store

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// NewClient constructs and wires the transport. Call Start to begin health
// probing and Close on teardown.
func NewClient(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	network := opts.Network
	var httpClient *executor.HTTPClient
	if network == nil {
		if opts.BackendURL == "" {
			return nil, fmt.Errorf("transport: BackendURL or Network is required")
		}
		httpClient = executor.NewHTTPClient(&http.Client{}, opts.ProbeURL)
		network = httpClient
	}

	prober := opts.Prober
	if prober == nil && httpClient != nil && httpClient.ProbeURL != "" {
		prober = httpClient
	}

	quality := netquality.NewMonitor(netquality.Options{
		Prober: prober,
		Clock:  clock,
	})

	maxConcurrent := opts.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 6
	}
	sched := queue.New(maxConcurrent)

	tracker := track.NewTracker(track.Options{
		Clock:       clock,
		HistorySize: opts.HistorySize,
	})

	store := opts.CacheStore
	if store == nil {
		store = cache.NewMemoryStore(cache.MemoryOptions{Clock: clock})
	}

	exec := executor.New(executor.Options{
		Network:        network,
		Quality:        quality,
		Cache:          store,
		Scheduler:      sched,
		Tracker:        tracker,
		Policy:         retry.DefaultPolicy(),
		Logger:         logger,
		Clock:          clock,
		CacheTTL:       opts.CacheTTL,
		DefaultTimeout: opts.RequestTimeout,
	})

	healthM := health.NewMonitor(health.Options{
		Prober:                  prober,
		Drainer:                 sched,
		Logger:                  logger,
		Clock:                   clock,
		CheckInterval:           opts.HealthCheckInterval,
		MaxReconnectionAttempts: opts.MaxReconnectAttempts,
	})

	c := &Client{
		opts:    opts,
		logger:  logger,
		clock:   clock,
		exec:    exec,
		quality: quality,
		healthM: healthM,
		sched:   sched,
		tracker: tracker,
		cache:   store,
	}

	// Health transitions also flip the quality monitor's online flag so
	// timeout scaling reacts to a dead backend.
	healthM.OnChange(func(healthy bool) {
		quality.SetOnline(healthy)
	})

	return c, nil
}

// Start launches background monitoring (health probes).
func (c *Client) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.healthM.Start(loopCtx)
}

// Close tears down timers and rejects queued work. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.healthM.Stop()
	c.sched.Close()
	return c.cache.Close()
}

// SendRequest pushes a request through the resilient pipeline.
func (c *Client) SendRequest(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return c.exec.Send(ctx, req)
}

// SendChat wraps a chat envelope into a POST against the configured backend
// and decodes the response envelope.
func (c *Client) SendChat(ctx context.Context, chat *domain.ChatRequest, priority domain.Priority) (*domain.ChatResponse, error) {
	if chat.Timestamp == 0 {
		chat.Timestamp = c.clock().UnixMilli()
	}
	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("encode chat envelope: %w", err)
	}

	chatPath := c.opts.ChatPath
	if chatPath == "" {
		chatPath = "/api/chat"
	}
	req := &domain.Request{
		ID:       uuid.NewString(),
		Method:   http.MethodPost,
		URL:      c.opts.BackendURL + chatPath,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     body,
		Priority: priority,
		Metadata: domain.RequestMetadata{
			TenantHash: chat.TenantHash,
			SessionID:  chat.SessionID,
			Action:     chat.Action,
		},
	}

	resp, err := c.exec.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	var envelope domain.ChatResponse
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("decode chat envelope: %w", err)
	}
	if envelope.RequestID == "" {
		envelope.RequestID = req.ID
	}
	return &envelope, nil
}

// OnNetworkStatusChange fires when the discrete quality level changes.
func (c *Client) OnNetworkStatusChange(fn func(domain.NetworkStatus)) func() {
	return c.quality.OnChange(fn)
}

// OnConnectionHealthChange fires on healthy/unhealthy transitions.
func (c *Client) OnConnectionHealthChange(fn func(bool)) func() {
	return c.healthM.OnChange(fn)
}

// OnRequestStart fires when a request enters the pipeline.
func (c *Client) OnRequestStart(fn func(domain.Request)) func() {
	return c.exec.Started.Subscribe(fn)
}

// OnRequestComplete fires on successful terminal entries.
func (c *Client) OnRequestComplete(fn func(domain.RequestLogEntry)) func() {
	return c.exec.Completed.Subscribe(fn)
}

// OnRequestError fires on failed terminal entries.
func (c *Client) OnRequestError(fn func(domain.RequestLogEntry)) func() {
	return c.exec.Failed.Subscribe(fn)
}

// GetMetrics returns the tracker's windowed snapshot.
func (c *Client) GetMetrics() track.Metrics {
	return c.tracker.Snapshot()
}

// GetCacheStats returns response cache counters.
func (c *Client) GetCacheStats() cache.Stats {
	return c.cache.Stats()
}

// ClearCache removes cached responses whose key starts with pattern; empty
// clears everything.
func (c *Client) ClearCache(ctx context.Context, pattern string) int {
	return c.cache.Clear(ctx, pattern)
}

// ForceHealthCheck probes immediately, re-arming automatic reconnection.
func (c *Client) ForceHealthCheck(ctx context.Context) domain.HealthState {
	return c.healthM.ForceHealthCheck(ctx)
}

// HealthState returns the current backend health snapshot.
func (c *Client) HealthState() domain.HealthState {
	return c.healthM.State()
}

// NetworkStatus returns the current connectivity snapshot.
func (c *Client) NetworkStatus() domain.NetworkStatus {
	return c.quality.Status()
}

// History returns the most recent terminal log entries, newest first.
func (c *Client) History(n int) []domain.RequestLogEntry {
	return c.tracker.History(n)
}
