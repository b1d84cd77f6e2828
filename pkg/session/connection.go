package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/metrics"
	"github.com/flowdeck/realtime/pkg/types"
)

// pump timing, the usual gorilla arrangement: the server pings a little
// inside the read deadline so one lost pong doesn't kill the connection.
type Timings struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connection is one authenticated duplex channel to one client process.
// Its identity is resolved once at handshake and never re-verified for
// the life of the channel.
type Connection struct {
	id       string
	identity types.Identity
	hub      *Hub
	conn     *websocket.Conn
	timings  Timings

	send      chan []byte
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newConnection(id string, identity types.Identity, conn *websocket.Conn, hub *Hub, timings Timings, sendBuffer int) *Connection {
	return &Connection{
		id:       id,
		identity: identity,
		hub:      hub,
		conn:     conn,
		timings:  timings,
		send:     make(chan []byte, sendBuffer),
		logger:   log.WithConnectionID(id),
	}
}

// ID returns the opaque connection id, unique per physical channel.
func (c *Connection) ID() string { return c.id }

// Identity returns the identity resolved at handshake.
func (c *Connection) Identity() types.Identity { return c.identity }

// TrySend queues a frame for the write pump without blocking. False means
// the buffer is full or closed and the frame was dropped for this
// recipient, so a slow or dead peer never stalls a broadcast.
func (c *Connection) TrySend(frame []byte) bool {
	defer func() {
		// Send on a closed channel races with CloseSend during teardown;
		// treat it as a dropped frame.
		_ = recover()
	}()
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// CloseSend closes the outbound queue, which makes the write pump finish
// the drain and close the socket.
func (c *Connection) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// run starts the read and write pumps. It returns immediately; the pumps
// own the socket from here on.
func (c *Connection) run() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames until the transport fails or closes,
// then triggers the single disconnect for this connection. A connection
// that stops heartbeating is reclaimed by the read deadline, not by any
// application-level timer.
func (c *Connection) readPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.timings.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timings.PongTimeout))
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// Any inbound traffic proves liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timings.PongTimeout))

		c.handleFrame(frame)
	}
}

// handleFrame parses and dispatches one inbound frame. Malformed frames
// are dropped without closing the connection.
func (c *Connection) handleFrame(frame []byte) {
	timer := prometheus.NewTimer(metrics.MessageHandleDuration)
	defer timer.ObserveDuration()

	msg, err := types.DecodeMessage(frame)
	if err != nil || msg.Type == "" {
		metrics.MalformedMessages.Inc()
		c.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	switch {
	case msg.Type == types.MessagePing:
		pong, _ := (&types.Message{Type: types.MessagePong}).Encode()
		c.TrySend(pong)

	case msg.Type == types.MessageJoinProject:
		projectID, ok := c.projectID(msg.Payload)
		if !ok {
			return
		}
		c.hub.Join(c.id, projectID)

	case msg.Type == types.MessageLeaveProject:
		projectID, ok := c.projectID(msg.Payload)
		if !ok {
			return
		}
		c.hub.Leave(c.id, projectID)

	case types.IsDomainEvent(msg.Type):
		projectID, ok := c.projectID(msg.Payload)
		if !ok {
			return
		}
		c.hub.RouteEvent(c.id, projectID, msg.Type, frame)

	default:
		metrics.UnknownMessages.Inc()
		c.logger.Debug().Str("type", string(msg.Type)).Msg("dropping unknown message type")
	}
}

// projectID extracts the routing key shared by membership and event
// payloads.
func (c *Connection) projectID(payload json.RawMessage) (string, bool) {
	var p types.ProjectPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ProjectID == "" {
		metrics.MalformedMessages.Inc()
		c.logger.Debug().Msg("dropping frame without project id")
		return "", false
	}
	return p.ProjectID, true
}

// writePump drains the outbound queue and keeps the transport alive with
// periodic pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.timings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteTimeout))
			if !ok {
				c.writeClose()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Drain whatever else is already queued before the next poll.
			n := len(c.send)
			for i := 0; i < n; i++ {
				frame, ok := <-c.send
				if !ok {
					c.writeClose()
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeClose tells the peer the channel ended normally. Every exhausted
// send queue ends with this frame, whether the close landed before the
// pump woke up or in the middle of a drain.
func (c *Connection) writeClose() {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
