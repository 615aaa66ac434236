package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

// RequestLogRepo archives terminal request log entries for diagnostics. The
// in-memory tracker stays authoritative; this is a write-behind sink.
type RequestLogRepo struct {
	db *DB
}

// NewRequestLogRepo creates a repository over db.
func NewRequestLogRepo(db *DB) *RequestLogRepo {
	return &RequestLogRepo{db: db}
}

type requestLogRow struct {
	RequestID  string    `db:"request_id"`
	Method     string    `db:"method"`
	URL        string    `db:"url"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	DurationMS int64     `db:"duration_ms"`
	StatusCode int       `db:"status_code"`
	ErrorType  string    `db:"error_type"`
	ErrorMsg   string    `db:"error_msg"`
	RetryCount int       `db:"retry_count"`
	FromCache  bool      `db:"from_cache"`
	Success    bool      `db:"success"`
}

// Insert appends one terminal entry.
func (r *RequestLogRepo) Insert(ctx context.Context, e domain.RequestLogEntry) error {
	row := requestLogRow{
		RequestID:  e.ID,
		Method:     e.Method,
		URL:        e.URL,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		DurationMS: e.Duration.Milliseconds(),
		StatusCode: e.StatusCode,
		ErrorType:  string(e.ErrorType),
		ErrorMsg:   e.Error,
		RetryCount: e.RetryCount,
		FromCache:  e.FromCache,
		Success:    e.Success,
	}

	const q = `
		INSERT INTO request_log (
			request_id, method, url, start_time, end_time, duration_ms,
			status_code, error_type, error_msg, retry_count, from_cache, success
		) VALUES (
			:request_id, :method, :url, :start_time, :end_time, :duration_ms,
			:status_code, :error_type, :error_msg, :retry_count, :from_cache, :success
		)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert request_log: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (r *RequestLogRepo) Recent(ctx context.Context, limit int) ([]domain.RequestLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []requestLogRow
	const q = `
		SELECT request_id, method, url, start_time, end_time, duration_ms,
		       status_code, error_type, error_msg, retry_count, from_cache, success
		FROM request_log
		ORDER BY end_time DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("select request_log: %w", err)
	}

	out := make([]domain.RequestLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RequestLogEntry{
			ID:         row.RequestID,
			Method:     row.Method,
			URL:        row.URL,
			StartTime:  row.StartTime,
			EndTime:    row.EndTime,
			Duration:   time.Duration(row.DurationMS) * time.Millisecond,
			DurationMS: row.DurationMS,
			StatusCode: row.StatusCode,
			ErrorType:  domain.ErrorType(row.ErrorType),
			Error:      row.ErrorMsg,
			RetryCount: row.RetryCount,
			FromCache:  row.FromCache,
			Success:    row.Success,
		})
	}
	return out, nil
}

// Prune deletes entries older than the retention period and returns how many
// rows were removed.
func (r *RequestLogRepo) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE end_time < $1`,
		time.Now().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("prune request_log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
