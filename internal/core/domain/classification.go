package domain

// ErrorType buckets a failure for retry and reporting decisions.
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeClient    ErrorType = "client"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeRender    ErrorType = "render"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Severity indicates how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the derived verdict for a failed request. It is never
// persisted; terminal errors carry the last one computed.
type Classification struct {
	Type            ErrorType
	Severity        Severity
	Retryable       bool
	UserMessage     string
	SuggestedAction string
}
