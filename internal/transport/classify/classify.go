// Package classify maps request failures to a retry-oriented taxonomy.
//
// Classify is pure and total: any (error, response) pair yields a
// Classification, and it never panics. Rules are evaluated in a fixed order
// so that transport-level signals (timeouts, connection resets) win over
// status-code interpretation.
package classify

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/embedkit/relay/internal/core/domain"
)

// User-facing messages per error type. The raw error is kept for diagnostics
// alongside these.
const (
	msgTimeout   = "The request took too long. Please try again."
	msgNetwork   = "We couldn't reach the server. Check your connection and try again."
	msgRateLimit = "You're sending messages too quickly. Please wait a moment."
	msgAuth      = "Authentication error. Please reload the widget."
	msgClient    = "The request could not be processed."
	msgServer    = "The server had a problem. We'll retry automatically."
	msgRender    = "Something went wrong displaying the response."
	msgConfig    = "The widget is misconfigured. Contact the site owner."
	msgUnknown   = "Something went wrong. Please try again."
)

var networkSignatures = []string{
	"failed to fetch",
	"networkerror",
	"err_network",
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"eof",
}

var timeoutSignatures = []string{
	"timeout",
	"timed out",
	"aborted",
	"deadline exceeded",
	"canceled",
	"cancelled",
}

var renderSignatures = []string{
	"render",
	"markdown parse",
	"template",
}

var configSignatures = []string{
	"invalid tenant",
	"missing config",
	"configuration",
	"misconfigured",
}

// Classify derives a Classification from an error and, when the call got far
// enough to produce one, the HTTP response. Either argument may be nil.
func Classify(err error, resp *domain.Response) domain.Classification {
	if c, ok := classifyError(err); ok {
		return c
	}
	if resp != nil {
		if c, ok := classifyStatus(resp.StatusCode); ok {
			return c
		}
	}
	if c, ok := classifyMessage(err); ok {
		return c
	}
	return domain.Classification{
		Type:            domain.ErrorTypeUnknown,
		Severity:        domain.SeverityMedium,
		Retryable:       true,
		UserMessage:     msgUnknown,
		SuggestedAction: "retry",
	}
}

func classifyError(err error) (domain.Classification, bool) {
	if err == nil {
		return domain.Classification{}, false
	}

	// Abort/timeout signals first: a canceled attempt may also carry a
	// wrapped transport error, and timeout semantics take precedence.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, os.ErrDeadlineExceeded) {
		return timeoutClassification(), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutClassification(), true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range timeoutSignatures {
		if strings.Contains(msg, sig) {
			return timeoutClassification(), true
		}
	}
	for _, sig := range networkSignatures {
		if strings.Contains(msg, sig) {
			return domain.Classification{
				Type:            domain.ErrorTypeNetwork,
				Severity:        domain.SeverityMedium,
				Retryable:       true,
				UserMessage:     msgNetwork,
				SuggestedAction: "check_connection",
			}, true
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.Classification{
			Type:            domain.ErrorTypeNetwork,
			Severity:        domain.SeverityMedium,
			Retryable:       true,
			UserMessage:     msgNetwork,
			SuggestedAction: "check_connection",
		}, true
	}

	return domain.Classification{}, false
}

func classifyStatus(status int) (domain.Classification, bool) {
	switch {
	case status == 429:
		return domain.Classification{
			Type:            domain.ErrorTypeRateLimit,
			Severity:        domain.SeverityMedium,
			Retryable:       true,
			UserMessage:     msgRateLimit,
			SuggestedAction: "wait",
		}, true
	case status == 401 || status == 403:
		return domain.Classification{
			Type:            domain.ErrorTypeClient,
			Severity:        domain.SeverityHigh,
			Retryable:       false,
			UserMessage:     msgAuth,
			SuggestedAction: "reauthenticate",
		}, true
	case status >= 400 && status < 500:
		return domain.Classification{
			Type:            domain.ErrorTypeClient,
			Severity:        domain.SeverityMedium,
			Retryable:       false,
			UserMessage:     msgClient,
			SuggestedAction: "report",
		}, true
	case status >= 500 && status < 600:
		return domain.Classification{
			Type:            domain.ErrorTypeServer,
			Severity:        domain.SeverityHigh,
			Retryable:       true,
			UserMessage:     msgServer,
			SuggestedAction: "retry",
		}, true
	default:
		return domain.Classification{}, false
	}
}

func classifyMessage(err error) (domain.Classification, bool) {
	if err == nil {
		return domain.Classification{}, false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range renderSignatures {
		if strings.Contains(msg, sig) {
			return domain.Classification{
				Type:            domain.ErrorTypeRender,
				Severity:        domain.SeverityHigh,
				Retryable:       false,
				UserMessage:     msgRender,
				SuggestedAction: "report",
			}, true
		}
	}
	for _, sig := range configSignatures {
		if strings.Contains(msg, sig) {
			return domain.Classification{
				Type:            domain.ErrorTypeConfig,
				Severity:        domain.SeverityCritical,
				Retryable:       false,
				UserMessage:     msgConfig,
				SuggestedAction: "contact_owner",
			}, true
		}
	}
	return domain.Classification{}, false
}

func timeoutClassification() domain.Classification {
	return domain.Classification{
		Type:            domain.ErrorTypeTimeout,
		Severity:        domain.SeverityMedium,
		Retryable:       true,
		UserMessage:     msgTimeout,
		SuggestedAction: "retry",
	}
}

// UserMessage returns the sanitized message for an error type without a full
// classification, for callers that only kept the type.
func UserMessage(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeTimeout:
		return msgTimeout
	case domain.ErrorTypeNetwork:
		return msgNetwork
	case domain.ErrorTypeRateLimit:
		return msgRateLimit
	case domain.ErrorTypeClient:
		return msgClient
	case domain.ErrorTypeServer:
		return msgServer
	case domain.ErrorTypeRender:
		return msgRender
	case domain.ErrorTypeConfig:
		return msgConfig
	default:
		return msgUnknown
	}
}
