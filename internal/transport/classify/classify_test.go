package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/embedkit/relay/internal/core/domain"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o wait expired" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestClassifyTimeoutSignals(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"canceled", context.Canceled},
		{"wrapped deadline", fmt.Errorf("request: %w", context.DeadlineExceeded)},
		{"net.Error timeout", fakeTimeoutErr{}},
		{"message timeout", errors.New("request timed out after 30s")},
		{"message aborted", errors.New("request aborted by caller")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(tc.err, nil)
			if c.Type != domain.ErrorTypeTimeout {
				t.Fatalf("got type %s, want timeout", c.Type)
			}
			if !c.Retryable {
				t.Error("timeout should be retryable")
			}
		})
	}
}

func TestClassifyNetworkSignatures(t *testing.T) {
	cases := []error{
		errors.New("Failed to fetch"),
		errors.New("dial tcp 10.0.0.1:443: connection refused"),
		errors.New("lookup api.example.com: no such host"),
		errors.New("ERR_NETWORK"),
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("host down")},
	}
	for _, err := range cases {
		c := Classify(err, nil)
		if c.Type != domain.ErrorTypeNetwork {
			t.Errorf("Classify(%q) = %s, want network", err, c.Type)
		}
		if !c.Retryable {
			t.Errorf("Classify(%q) should be retryable", err)
		}
	}
}

func TestTimeoutWinsOverNetworkSignature(t *testing.T) {
	// An aborted attempt that also mentions a connection error classifies as
	// timeout: transport-abort signals take precedence.
	err := fmt.Errorf("connection reset: %w", context.DeadlineExceeded)
	c := Classify(err, nil)
	if c.Type != domain.ErrorTypeTimeout {
		t.Fatalf("got %s, want timeout", c.Type)
	}
}

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		wantType  domain.ErrorType
		retryable bool
	}{
		{429, domain.ErrorTypeRateLimit, true},
		{401, domain.ErrorTypeClient, false},
		{403, domain.ErrorTypeClient, false},
		{400, domain.ErrorTypeClient, false},
		{404, domain.ErrorTypeClient, false},
		{422, domain.ErrorTypeClient, false},
		{500, domain.ErrorTypeServer, true},
		{502, domain.ErrorTypeServer, true},
		{503, domain.ErrorTypeServer, true},
	}
	for _, tc := range cases {
		resp := &domain.Response{StatusCode: tc.status}
		c := Classify(nil, resp)
		if c.Type != tc.wantType {
			t.Errorf("status %d: got %s, want %s", tc.status, c.Type, tc.wantType)
		}
		if c.Retryable != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, c.Retryable, tc.retryable)
		}
	}
}

func TestRateLimitBeatsGenericClient(t *testing.T) {
	c := Classify(nil, &domain.Response{StatusCode: 429})
	if c.Type != domain.ErrorTypeRateLimit {
		t.Fatalf("got %s, want rate_limit", c.Type)
	}
	if c.SuggestedAction != "wait" {
		t.Errorf("suggested action = %q, want wait", c.SuggestedAction)
	}
}

func TestClassifyRenderAndConfig(t *testing.T) {
	c := Classify(errors.New("markdown parse failure in message body"), nil)
	if c.Type != domain.ErrorTypeRender {
		t.Fatalf("got %s, want render", c.Type)
	}
	if c.Retryable {
		t.Error("render errors are not retryable")
	}

	c = Classify(errors.New("invalid tenant hash"), nil)
	if c.Type != domain.ErrorTypeConfig {
		t.Fatalf("got %s, want config", c.Type)
	}
	if c.Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want critical", c.Severity)
	}
}

func TestClassifyUnknownFallback(t *testing.T) {
	c := Classify(errors.New("weird state"), nil)
	if c.Type != domain.ErrorTypeUnknown {
		t.Fatalf("got %s, want unknown", c.Type)
	}
	if !c.Retryable {
		t.Error("unknown errors get one cautious retry")
	}

	// Totality: nil error, nil response must still classify.
	c = Classify(nil, nil)
	if c.Type != domain.ErrorTypeUnknown {
		t.Fatalf("nil/nil: got %s, want unknown", c.Type)
	}
}

func TestUserMessagesNeverEmpty(t *testing.T) {
	types := []domain.ErrorType{
		domain.ErrorTypeNetwork,
		domain.ErrorTypeTimeout,
		domain.ErrorTypeRateLimit,
		domain.ErrorTypeClient,
		domain.ErrorTypeServer,
		domain.ErrorTypeRender,
		domain.ErrorTypeConfig,
		domain.ErrorTypeUnknown,
	}
	for _, typ := range types {
		if UserMessage(typ) == "" {
			t.Errorf("UserMessage(%s) is empty", typ)
		}
	}
}
