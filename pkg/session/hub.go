package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/metrics"
	"github.com/flowdeck/realtime/pkg/presence"
	"github.com/flowdeck/realtime/pkg/room"
	"github.com/flowdeck/realtime/pkg/router"
	"github.com/flowdeck/realtime/pkg/types"
)

// Peer is the hub's view of one authenticated connection.
type Peer interface {
	ID() string
	Identity() types.Identity
	// TrySend queues one outbound frame without blocking; false means the
	// frame was dropped for this peer.
	TrySend(frame []byte) bool
	// CloseSend closes the peer's outbound queue. Idempotent.
	CloseSend()
}

// Hub is the single event loop at the heart of the session layer. Every
// membership mutation, presence notification, and event fan-out runs as a
// command on this loop, strictly sequentially. That is what serializes
// room membership and orders events per origin without locks. The room
// registry and the peer table are owned by the loop goroutine and touched
// nowhere else.
type Hub struct {
	registry *room.Registry
	presence *presence.Tracker
	router   *router.Router
	peers    map[string]Peer

	ops     chan func()
	stop    chan struct{}
	done    chan struct{}
	started time.Time
	logger  zerolog.Logger
}

// Stats is a point-in-time operational snapshot, answered synchronously by
// the loop so the counts are never torn.
type Stats struct {
	Connections int
	Rooms       int
	Started     time.Time
}

// NewHub creates a hub. Call Run before registering peers.
func NewHub() *Hub {
	h := &Hub{
		registry: room.NewRegistry(),
		presence: presence.New(),
		peers:    make(map[string]Peer),
		ops:      make(chan func(), 256),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		started:  time.Now(),
		logger:   log.WithComponent("hub"),
	}
	h.router = router.New(h.registry, h.lookupSender)
	return h
}

// Run starts the event loop.
func (h *Hub) Run() {
	go h.loop()
}

// Stop terminates the event loop and closes every peer's outbound queue.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case op := <-h.ops:
			op()
		case <-h.stop:
			for _, p := range h.peers {
				p.CloseSend()
			}
			return
		}
	}
}

// do enqueues one command for the loop. Commands submitted after Stop are
// discarded.
func (h *Hub) do(op func()) {
	select {
	case h.ops <- op:
	case <-h.stop:
	}
}

// lookupSender resolves peers for the router. Runs on the loop only.
func (h *Hub) lookupSender(connectionID string) (router.Sender, bool) {
	p, ok := h.peers[connectionID]
	return p, ok
}

// Register adds an authenticated peer to the hub.
func (h *Hub) Register(p Peer) {
	h.do(func() {
		h.peers[p.ID()] = p
		metrics.ConnectionsActive.Set(float64(len(h.peers)))
		h.logger.Info().
			Str("connection_id", p.ID()).
			Str("user_id", p.Identity().UserID).
			Msg("connection registered")
	})
}

// Disconnect removes the peer from every room it belongs to, notifies the
// rooms that remain non-empty, and forgets the peer. The read pump calls
// this exactly once, after which no further events from the connection
// are considered.
func (h *Hub) Disconnect(connectionID string) {
	h.do(func() {
		departures := h.registry.RemoveConnectionEverywhere(connectionID)
		for _, d := range departures {
			if d.Remaining == 0 {
				continue
			}
			h.notifyLeft(d.ProjectID, d.Member, d.Remaining)
		}

		if p, ok := h.peers[connectionID]; ok {
			delete(h.peers, connectionID)
			p.CloseSend()
		}
		metrics.ConnectionsActive.Set(float64(len(h.peers)))
		metrics.RoomsActive.Set(float64(h.registry.RoomCount()))
		h.logger.Info().
			Str("connection_id", connectionID).
			Int("rooms_left", len(departures)).
			Msg("connection closed")
	})
}

// Join adds the connection to the project's room. Idempotent: a repeat
// join is a no-op. The joiner receives the full roster; everyone else in
// the room receives the joined delta and updated count.
func (h *Hub) Join(connectionID, projectID string) {
	h.do(func() {
		p, ok := h.peers[connectionID]
		if !ok {
			return
		}

		members, joined := h.registry.Join(connectionID, projectID, p.Identity(), time.Now())
		if !joined {
			return
		}
		metrics.RoomsActive.Set(float64(h.registry.RoomCount()))

		var self types.Member
		for _, m := range members {
			if m.ConnectionID == connectionID {
				self = m
				break
			}
		}

		n, err := h.presence.Joined(projectID, self, members)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to build presence notification")
			return
		}
		h.deliver(connectionID, projectID, n)

		h.logger.Info().
			Str("connection_id", connectionID).
			Str("project_id", projectID).
			Int("members", len(members)).
			Msg("joined room")
	})
}

// Leave removes the connection from the project's room; no-op if it was
// never a member.
func (h *Hub) Leave(connectionID, projectID string) {
	h.do(func() {
		member, ok := h.registry.Leave(connectionID, projectID)
		if !ok {
			return
		}
		metrics.RoomsActive.Set(float64(h.registry.RoomCount()))

		remaining := h.registry.MemberCount(projectID)
		if remaining > 0 {
			h.notifyLeft(projectID, member, remaining)
		}

		h.logger.Info().
			Str("connection_id", connectionID).
			Str("project_id", projectID).
			Msg("left room")
	})
}

// RouteEvent fans a domain event frame out to the rest of the origin's
// room. The frame is relayed verbatim; the payload is never interpreted
// beyond its projectId routing key, which the caller has already parsed.
func (h *Hub) RouteEvent(originConnectionID, projectID string, eventType types.MessageType, frame []byte) {
	h.do(func() {
		metrics.EventsRouted.WithLabelValues(string(eventType)).Inc()
		h.router.Route(originConnectionID, projectID, frame)
	})
}

// Stats answers a synchronous snapshot query. Because the reply is
// computed on the loop, it also acts as a barrier: all previously
// submitted commands have completed when Stats returns.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	h.do(func() {
		reply <- Stats{
			Connections: len(h.peers),
			Rooms:       h.registry.RoomCount(),
			Started:     h.started,
		}
	})
	select {
	case s := <-reply:
		return s
	case <-h.stop:
		return Stats{Started: h.started}
	}
}

// notifyLeft broadcasts the left delta and updated count to a room that
// still has members. Runs on the loop.
func (h *Hub) notifyLeft(projectID string, member types.Member, remaining int) {
	n, err := h.presence.Left(projectID, member, remaining)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build presence notification")
		return
	}
	h.deliver(member.ConnectionID, projectID, n)
}

// deliver sends a presence notification: full-roster frames to the changed
// connection, delta frames to the rest of the room. Runs on the loop.
func (h *Hub) deliver(changedConnectionID, projectID string, n *presence.Notification) {
	if p, ok := h.peers[changedConnectionID]; ok {
		for _, frame := range n.ToChanged {
			if !p.TrySend(frame) {
				metrics.EventsDropped.Inc()
			}
		}
	}
	for _, frame := range n.ToOthers {
		h.router.Route(changedConnectionID, projectID, frame)
	}
}
