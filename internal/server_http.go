package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Server ties the dispatcher to its HTTP/WebSocket surface.
type Server struct {
	dispatcher *Dispatcher
	metrics    *Metrics
	limiter    *RateLimiter
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

// ServerOptions tunes the HTTP surface. ClientOrigin restricts browser
// connections to one configured origin; empty or "*" allows any, and
// requests without an Origin header (non-browser clients) always pass.
// Zero rate-limit fields fall back to the package defaults.
type ServerOptions struct {
	ClientOrigin    string
	RateLimitBurst  int
	RateLimitWindow time.Duration
}

// NewServer builds the HTTP surface.
func NewServer(dispatcher *Dispatcher, metrics *Metrics, log *slog.Logger, opts ServerOptions) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		dispatcher: dispatcher,
		metrics:    metrics,
		limiter:    NewRateLimiter(opts.RateLimitBurst, opts.RateLimitWindow),
		log:        log,
	}
	allowed, allowAll := normalizeOrigin(opts.ClientOrigin)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			got, _ := normalizeOrigin(origin)
			if got != "" && got == allowed {
				return true
			}
			log.Warn("blocked websocket from disallowed origin", "origin", origin)
			return false
		},
	}
	return s
}

// normalizeOrigin lowercases scheme://host so comparisons ignore case and
// trailing parts. The second return reports the allow-everything cases.
func normalizeOrigin(origin string) (string, bool) {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "" || trimmed == "*" {
		return "", true
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), false
}

// HandleHealth is the readiness probe: a static acknowledgment that the
// process is serving.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// HandleRoomExists reports whether a room currently has members, without
// creating it.
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.dispatcher.RoomExists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// MetricsHandler exposes the relay counters as JSON.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
