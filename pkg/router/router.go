package router

import (
	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/metrics"
	"github.com/flowdeck/realtime/pkg/room"
)

// Sender delivers one raw frame to a recipient without blocking. TrySend
// reports false when the frame was dropped (full buffer or closed channel);
// the router treats that as a per-recipient loss, never a reason to stall
// the rest of the broadcast.
type Sender interface {
	TrySend(frame []byte) bool
}

// Lookup resolves a connection id to its sender. Recipients that resolve
// to nothing (already disconnected) are skipped.
type Lookup func(connectionID string) (Sender, bool)

// Router fans a frame out to every member of a room except its originator.
// Like the registry it is only ever invoked from the hub's event loop, so
// events from one origin reach each recipient in the order they were sent.
type Router struct {
	registry *room.Registry
	lookup   Lookup
	logger   zerolog.Logger
}

// New creates a router over the given registry.
func New(registry *room.Registry, lookup Lookup) *Router {
	return &Router{
		registry: registry,
		lookup:   lookup,
		logger:   log.WithComponent("router"),
	}
}

// Route delivers the frame to every current member of the project's room
// except the originator, and returns the number of successful deliveries.
//
// An event for a project with no tracked room is silently dropped: it is
// an expected race with disconnect, not an error. Delivery is
// fire-and-forget: no acknowledgement, no retry. Recipients that miss a
// frame re-fetch authoritative state from the persistence API later.
func (r *Router) Route(originConnectionID, projectID string, frame []byte) int {
	members := r.registry.MembersOf(projectID)
	if members == nil {
		metrics.RoutingMisses.Inc()
		r.logger.Debug().
			Str("project_id", projectID).
			Str("origin", originConnectionID).
			Msg("event for untracked room dropped")
		return 0
	}

	delivered := 0
	for _, m := range members {
		if m.ConnectionID == originConnectionID {
			continue // echo suppression
		}
		sender, ok := r.lookup(m.ConnectionID)
		if !ok {
			continue
		}
		if sender.TrySend(frame) {
			delivered++
		} else {
			metrics.EventsDropped.Inc()
			r.logger.Warn().
				Str("project_id", projectID).
				Str("connection_id", m.ConnectionID).
				Msg("recipient buffer full, frame dropped")
		}
	}
	return delivered
}
