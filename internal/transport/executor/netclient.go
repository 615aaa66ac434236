package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/embedkit/relay/internal/core/domain"
)

// NetworkClient is the injected fetch-like primitive. Implementations return
// the response regardless of HTTP status; only transport-level failures are
// errors.
type NetworkClient interface {
	Do(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// HTTPClient adapts net/http to NetworkClient and doubles as the
// connectivity prober.
type HTTPClient struct {
	Client   *http.Client
	ProbeURL string
}

// NewHTTPClient wraps c, defaulting to http.DefaultClient. probeURL is the
// connectivity-probe endpoint.
func NewHTTPClient(c *http.Client, probeURL string) *HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &HTTPClient{Client: c, ProbeURL: probeURL}
}

// Do issues the request. The per-attempt timeout is carried by ctx.
func (h *HTTPClient) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := h.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &domain.Response{
		RequestID:  req.ID,
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       respBody,
		Duration:   time.Since(start),
	}, nil
}

// Probe performs a lightweight HEAD request against the probe endpoint.
func (h *HTTPClient) Probe(ctx context.Context) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, h.ProbeURL, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return latency, fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return latency, nil
}
