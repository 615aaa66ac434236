package executor

import (
	"errors"
	"fmt"

	"github.com/embedkit/relay/internal/core/domain"
)

// TerminalError is the final, surfaced failure returned to a caller after
// retries are exhausted or a non-retryable classification is hit. It keeps
// the underlying error for diagnostics alongside the sanitized user message.
type TerminalError struct {
	Classification domain.Classification
	UserMessage    string
	Attempts       int
	Err            error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("request failed after %d attempt(s) (%s): %v",
		e.Attempts, e.Classification.Type, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// AsTerminal extracts a TerminalError from an error chain.
func AsTerminal(err error) (*TerminalError, bool) {
	var te *TerminalError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// attemptError carries a failed attempt's classification and, when the call
// got far enough, its response, through the dedup boundary.
type attemptError struct {
	classification domain.Classification
	resp           *domain.Response
	err            error
}

func (e *attemptError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("request failed with status %d", e.statusCode())
}

func (e *attemptError) Unwrap() error {
	return e.err
}

func (e *attemptError) statusCode() int {
	if e.resp == nil {
		return 0
	}
	return e.resp.StatusCode
}
