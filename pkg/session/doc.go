/*
Package session is the server side of the realtime collaboration layer:
authenticated websocket connections, the room-scoped event loop, and the
wire protocol dispatch.

# Architecture

	 client ──ws──▶ Handler ──verify──▶ Connection (read/write pumps)
	                                        │ commands
	                                        ▼
	                  ┌──────────── Hub event loop ────────────┐
	                  │  room.Registry   (membership table)    │
	                  │  presence.Tracker (roster snapshots)   │
	                  │  router.Router    (event fan-out)      │
	                  └─────────────────────────────────────────┘

The Hub runs one goroutine consuming a command channel. Joins, leaves,
event routing, disconnects, and stat queries all execute on that loop,
strictly one at a time; the registry and peer table are never touched
from anywhere else. This is the single-writer arrangement that makes
membership mutation serializable and gives events from one origin a
stable delivery order per recipient; the unit of horizontal scaling is
therefore the process, with room affinity handled upstream by the
reverse proxy.

Outbound delivery is asynchronous and fire-and-forget: each connection
has a buffered send queue drained by its own write pump, and a full
queue drops frames for that recipient only. Connection liveness rides on
client pings and read deadlines; a silent peer is reclaimed by the
transport, not by application logic.
*/
package session
