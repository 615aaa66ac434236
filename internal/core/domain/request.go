package domain

import (
	"strings"
	"time"
)

// Priority orders queued requests when the transport is saturated or offline.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps a config/wire string to a Priority. Unrecognized
// values fall back to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// RequestState tracks a request through its lifecycle.
type RequestState string

const (
	RequestStateCreated   RequestState = "created"
	RequestStateQueued    RequestState = "queued"
	RequestStateExecuting RequestState = "executing"
	RequestStateSucceeded RequestState = "succeeded"
	RequestStateFailed    RequestState = "failed"
)

// Request describes one outbound call through the transport. The executor
// owns it until terminal; the tracker and scheduler only observe it.
type Request struct {
	ID        string
	Method    string
	URL       string
	Headers   map[string]string
	Body      []byte
	Priority  Priority
	Timeout   time.Duration
	CreatedAt time.Time

	// Metadata carries optional, named request annotations instead of an
	// untyped bag.
	Metadata RequestMetadata
}

// RequestMetadata holds optional named annotations for a request.
type RequestMetadata struct {
	TenantHash string
	SessionID  string
	Action     string
	Source     string
}

// Idempotent reports whether a request may be served from and populate the
// response cache.
func (r *Request) Idempotent() bool {
	switch strings.ToUpper(r.Method) {
	case "GET", "HEAD":
		return true
	default:
		return false
	}
}

// Response is the transport-level result of a request.
type Response struct {
	RequestID  string
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	FromCache  bool
}
