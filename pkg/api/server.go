package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/metrics"
	"github.com/flowdeck/realtime/pkg/session"
)

// Server is the daemon's HTTP surface: the websocket endpoint for clients
// plus the out-of-band operational endpoints used by tooling, not clients.
type Server struct {
	hub    *session.Hub
	http   *http.Server
	logger zerolog.Logger
}

// NewServer wires the routes. wsHandler is mounted at /ws; /healthz,
// /status, and /metrics serve operations.
func NewServer(addr string, hub *session.Hub, wsHandler http.Handler) *Server {
	router := httprouter.New()
	s := &Server{
		hub:    hub,
		logger: log.WithComponent("api"),
	}

	router.Handler(http.MethodGet, "/ws", wsHandler)
	router.HandlerFunc(http.MethodGet, "/healthz", s.healthHandler)
	router.HandlerFunc(http.MethodGet, "/status", s.statusHandler)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())

	s.http = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// HealthResponse is the liveness check body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse reports process uptime and the live session population.
type StatusResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	Connections   int       `json:"connections"`
	Rooms         int       `json:"rooms"`
	Timestamp     time.Time `json:"timestamp"`
}

// healthHandler is a plain liveness check: 200 if the process is alive.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// statusHandler answers the operational status query with counts taken
// from a consistent hub snapshot.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(stats.Started).Seconds()),
		Connections:   stats.Connections,
		Rooms:         stats.Rooms,
		Timestamp:     time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
