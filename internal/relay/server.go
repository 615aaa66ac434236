package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embedkit/relay/internal/core/domain"
	"github.com/embedkit/relay/internal/transport"
	"github.com/embedkit/relay/internal/transport/executor"
)

// Server provides the widget-facing chat endpoint and the admin surface.
type Server struct {
	client *transport.Client
	log    *slog.Logger
	server *http.Server
}

// NewServer creates the relay HTTP server.
func NewServer(client *transport.Client, port int, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		client: client,
		log:    log,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /admin/health-check", s.handleForceHealthCheck)
	mux.HandleFunc("DELETE /admin/cache", s.handleClearCache)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var chat domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chat); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.ChatResponse{
			Success: false,
			Error:   "invalid chat envelope",
		})
		return
	}
	if chat.TenantHash == "" || chat.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, domain.ChatResponse{
			Success: false,
			Error:   "tenant_hash and session_id are required",
		})
		return
	}

	priority := domain.ParsePriority(r.Header.Get("X-Relay-Priority"))

	resp, err := s.client.SendChat(r.Context(), &chat, priority)
	if err != nil {
		status := http.StatusBadGateway
		envelope := domain.ChatResponse{Success: false, Error: err.Error()}
		if te, ok := executor.AsTerminal(err); ok {
			envelope.Error = te.UserMessage
			switch te.Classification.Type {
			case domain.ErrorTypeRateLimit:
				status = http.StatusTooManyRequests
			case domain.ErrorTypeClient:
				status = http.StatusBadRequest
			case domain.ErrorTypeTimeout:
				status = http.StatusGatewayTimeout
			}
		}
		writeJSON(w, status, envelope)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.client.HealthState()

	status := http.StatusOK
	body := map[string]any{"status": "healthy"}
	if !state.IsHealthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	state := s.client.HealthState()
	netStatus := s.client.NetworkStatus()

	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":              state.IsHealthy,
		"consecutive_failures": state.ConsecutiveFailures,
		"current_backoff_ms":   state.CurrentBackoff.Milliseconds(),
		"last_check_at":        state.LastCheckAt,
		"network_quality":      netStatus.Quality,
		"is_online":            netStatus.IsOnline,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("history"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": s.client.GetMetrics(),
		"cache":   s.client.GetCacheStats(),
		"history": s.client.History(n),
	})
}

func (s *Server) handleForceHealthCheck(w http.ResponseWriter, r *http.Request) {
	state := s.client.ForceHealthCheck(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":              state.IsHealthy,
		"consecutive_failures": state.ConsecutiveFailures,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	removed := s.client.ClearCache(r.Context(), pattern)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
