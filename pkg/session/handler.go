package session

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/auth"
	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/metrics"
)

// Handler upgrades HTTP requests to session connections. The credential
// travels as a `token` query parameter, out of band from regular
// messages, and is verified before the upgrade completes, so no
// join-project message can ever be processed on an unauthenticated
// channel.
type Handler struct {
	hub        *Hub
	verifier   *auth.Verifier
	upgrader   websocket.Upgrader
	timings    Timings
	sendBuffer int
	logger     zerolog.Logger
}

// NewHandler creates the websocket endpoint handler. An empty
// allowedOrigins list accepts any origin.
func NewHandler(hub *Hub, verifier *auth.Verifier, timings Timings, sendBuffer int, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		timings:    timings,
		sendBuffer: sendBuffer,
		logger:     log.WithComponent("session"),
	}
}

// ServeHTTP authenticates and upgrades one connection attempt.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		metrics.AuthFailures.Inc()
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("connection refused")
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := newConnection(uuid.NewString(), *identity, conn, h.hub, h.timings, h.sendBuffer)
	h.hub.Register(c)
	c.run()
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}
