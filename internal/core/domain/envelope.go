package domain

// ChatRequest is the wire envelope the widget sends for a chat turn.
type ChatRequest struct {
	Action      string       `json:"action"`
	UserInput   string       `json:"user_input"`
	TenantHash  string       `json:"tenant_hash"`
	SessionID   string       `json:"session_id"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// Attachment references an uploaded file included with a chat turn.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// ChatResponse is the wire envelope returned to the widget.
type ChatResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"request_id"`
}
