package domain

import "time"

// RequestLogEntry is an immutable snapshot of a finished request, appended to
// the tracker's bounded history and optionally archived.
type RequestLogEntry struct {
	ID         string        `db:"request_id"`
	Method     string        `db:"method"`
	URL        string        `db:"url"`
	StartTime  time.Time     `db:"start_time"`
	EndTime    time.Time     `db:"end_time"`
	Duration   time.Duration `db:"-"`
	DurationMS int64         `db:"duration_ms"`
	StatusCode int           `db:"status_code"`
	ErrorType  ErrorType     `db:"error_type"`
	Error      string        `db:"error_msg"`
	RetryCount int           `db:"retry_count"`
	FromCache  bool          `db:"from_cache"`
	Success    bool          `db:"success"`
}
