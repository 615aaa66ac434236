package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks terminal request outcomes per tenant
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of terminal requests",
		},
		[]string{"tenant", "outcome"},
	)

	// RequestErrorsTotal tracks terminal errors by classification type
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_request_errors_total",
			Help: "Total number of terminal request errors",
		},
		[]string{"tenant", "error_type"},
	)

	// RetriesTotal tracks scheduled retries by classification type
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Total number of retry attempts scheduled",
		},
		[]string{"error_type"},
	)

	// RequestLatency tracks end-to-end request latency
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_latency_seconds",
			Help:    "End-to-end request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// CacheHits tracks response cache hits and misses
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	// DedupShared tracks requests served by an in-flight identical call
	DedupShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_dedup_shared_total",
			Help: "Requests that reused an in-flight identical call",
		},
	)

	// QueueDepth tracks the number of waiters in the priority queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of requests waiting for an execution slot",
		},
	)

	// NetworkQuality exposes the current quality level as a numeric gauge
	// (0=offline, 1=poor, 2=fair, 3=good, 4=excellent)
	NetworkQuality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_network_quality_level",
			Help: "Current network quality level",
		},
	)

	// BackendHealthy exposes the connection health state (1 healthy, 0 not)
	BackendHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_backend_healthy",
			Help: "Whether the backend health probe currently succeeds",
		},
	)
)

// QualityLevel maps a quality bucket name to its gauge value.
func QualityLevel(quality string) float64 {
	switch quality {
	case "offline":
		return 0
	case "poor":
		return 1
	case "fair":
		return 2
	case "good":
		return 3
	case "excellent":
		return 4
	default:
		return 3
	}
}
