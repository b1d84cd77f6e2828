package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/types"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations on a client that has been closed.
var ErrClosed = errors.New("client closed")

// Config holds client configuration.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8090/ws.
	URL string
	// Token is the session credential presented at connection time.
	Token string
	// BackoffFloor and BackoffCeiling bound the reconnect delay.
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	// MaxAttempts bounds consecutive failed reconnects before the client
	// gives up and enters StateDisconnected. Zero means retry forever,
	// matching the always-on source behavior.
	MaxAttempts int
	// PingInterval is the heartbeat interval.
	PingInterval time.Duration
	// HandshakeTimeout bounds one dial attempt.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the standard configuration for the endpoint.
func DefaultConfig(url, token string) *Config {
	return &Config{
		URL:              url,
		Token:            token,
		BackoffFloor:     time.Second,
		BackoffCeiling:   30 * time.Second,
		MaxAttempts:      0,
		PingInterval:     25 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Backoff returns the reconnect delay for the given zero-based attempt:
// min(ceiling, floor * 2^attempt).
func (c *Config) Backoff(attempt int) time.Duration {
	delay := c.BackoffFloor
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.BackoffCeiling {
			return c.BackoffCeiling
		}
	}
	if delay > c.BackoffCeiling {
		return c.BackoffCeiling
	}
	return delay
}

// Client maintains one session connection to the realtime daemon,
// transparently reconnecting and rejoining rooms when the transport drops.
type Client struct {
	cfg *Config

	conn    *websocket.Conn
	connMu  sync.Mutex
	writeMu sync.Mutex
	state   atomic.Int32

	joined   map[string]bool
	joinedMu sync.Mutex

	onEvent       func(*types.Message)
	onPresence    func(*types.Message)
	onResync      func(projectID string)
	onStateChange func(State)

	closeCh   chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// New creates a client. Callbacks must be set before Connect; they are
// invoked from the client's read goroutine.
func New(cfg *Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("endpoint URL is required")
	}
	if cfg.BackoffFloor <= 0 || cfg.BackoffCeiling < cfg.BackoffFloor {
		return nil, fmt.Errorf("invalid backoff bounds: floor %s, ceiling %s",
			cfg.BackoffFloor, cfg.BackoffCeiling)
	}
	c := &Client{
		cfg:     cfg,
		joined:  make(map[string]bool),
		closeCh: make(chan struct{}),
		logger:  log.WithComponent("client"),
	}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// OnEvent registers the handler for relayed domain events.
func (c *Client) OnEvent(fn func(*types.Message)) { c.onEvent = fn }

// OnPresence registers the handler for roster and count notifications.
func (c *Client) OnPresence(fn func(*types.Message)) { c.onPresence = fn }

// OnResync registers the hook invoked once per rejoined room after a
// reconnect. Events broadcast while the client was away are permanently
// missed, with no replay, so the application must re-fetch
// authoritative state for any open view from the persistence API.
func (c *Client) OnResync(fn func(projectID string)) { c.onResync = fn }

// OnStateChange registers the connection state observer.
func (c *Client) OnStateChange(fn func(State)) { c.onStateChange = fn }

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect dials the endpoint and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	if c.closedDuringDial() {
		return ErrClosed
	}
	c.setState(StateConnected)
	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Close terminates the client. No reconnection is attempted afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closeCh)
	})
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// JoinProject joins the project's room. The membership is remembered and
// re-issued automatically after a reconnect.
func (c *Client) JoinProject(projectID string) error {
	c.joinedMu.Lock()
	c.joined[projectID] = true
	c.joinedMu.Unlock()
	return c.sendProjectMessage(types.MessageJoinProject, projectID)
}

// LeaveProject leaves the project's room and forgets the membership.
func (c *Client) LeaveProject(projectID string) error {
	c.joinedMu.Lock()
	delete(c.joined, projectID)
	c.joinedMu.Unlock()
	return c.sendProjectMessage(types.MessageLeaveProject, projectID)
}

// SendEvent sends a fire-and-forget domain event to the project's room.
func (c *Client) SendEvent(eventType types.MessageType, projectID string, data any) error {
	if !types.IsDomainEvent(eventType) {
		return fmt.Errorf("%q is not a domain event type", eventType)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	payload, err := json.Marshal(types.EventPayload{ProjectID: projectID, Data: raw})
	if err != nil {
		return err
	}
	return c.writeMessage(&types.Message{Type: eventType, Payload: payload})
}

func (c *Client) sendProjectMessage(t types.MessageType, projectID string) error {
	payload, err := json.Marshal(types.ProjectPayload{ProjectID: projectID})
	if err != nil {
		return err
	}
	return c.writeMessage(&types.Message{Type: t, Payload: payload})
}

func (c *Client) writeMessage(msg *types.Message) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	frame, err := msg.Encode()
	if err != nil {
		return err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL+"?token="+c.cfg.Token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.URL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// readLoop consumes frames until the transport fails, then hands over to
// the reconnect loop.
func (c *Client) readLoop() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			c.logger.Warn().Err(err).Msg("connection lost")
			c.reconnectLoop()
			return
		}

		msg, err := types.DecodeMessage(frame)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *types.Message) {
	switch {
	case msg.Type == types.MessagePong:
		// Heartbeat echo; liveness only.
	case types.IsDomainEvent(msg.Type):
		if c.onEvent != nil {
			c.onEvent(msg)
		}
	case msg.Type == types.MessageUsersActive ||
		msg.Type == types.MessageUsersCount ||
		msg.Type == types.MessageUserJoined ||
		msg.Type == types.MessageUserLeft:
		if c.onPresence != nil {
			c.onPresence(msg)
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring unexpected message")
	}
}

// reconnectLoop re-establishes the connection with exponential backoff and
// rejoins every room the client believed itself a member of. The attempt
// counter resets on success.
func (c *Client) reconnectLoop() {
	c.setState(StateReconnecting)

	for attempt := 0; ; attempt++ {
		if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
			c.logger.Error().Int("attempts", attempt).Msg("giving up on reconnection")
			c.setState(StateDisconnected)
			return
		}

		delay := c.cfg.Backoff(attempt)
		c.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("reconnecting")

		select {
		case <-time.After(delay):
		case <-c.closeCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Msg("reconnect attempt failed")
			continue
		}

		// Close may have raced the dial. The caller terminated the
		// client, so the fresh connection must not come up.
		if c.closedDuringDial() {
			return
		}

		c.setState(StateConnected)
		go c.readLoop()
		go c.pingLoop()
		c.rejoinAll()
		return
	}
}

// closedDuringDial tears down a connection established after Close was
// issued and reports whether that happened.
func (c *Client) closedDuringDial() bool {
	select {
	case <-c.closeCh:
	default:
		return false
	}
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return true
}

// rejoinAll re-issues join-project for every remembered room and invokes
// the resync hook for each, since anything broadcast during the outage is
// gone for good.
func (c *Client) rejoinAll() {
	c.joinedMu.Lock()
	rooms := make([]string, 0, len(c.joined))
	for projectID := range c.joined {
		rooms = append(rooms, projectID)
	}
	c.joinedMu.Unlock()

	for _, projectID := range rooms {
		if err := c.sendProjectMessage(types.MessageJoinProject, projectID); err != nil {
			c.logger.Warn().Err(err).Str("project_id", projectID).Msg("rejoin failed")
			continue
		}
		if c.onResync != nil {
			c.onResync(projectID)
		}
	}
}

// pingLoop keeps the connection alive with protocol-level pings. It stops
// when the connection it was started for goes away; the next connection
// gets its own loop.
func (c *Client) pingLoop() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	frame, _ := (&types.Message{Type: types.MessagePing}).Encode()
	for {
		select {
		case <-ticker.C:
			c.connMu.Lock()
			current := c.conn
			c.connMu.Unlock()
			if current != conn || c.State() != StateConnected {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, frame)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// setState transitions the lifecycle state. StateClosed is terminal: once
// Close has run, no concurrent dial or pump may resurrect the client.
func (c *Client) setState(s State) {
	for {
		old := State(c.state.Load())
		if old == StateClosed && s != StateClosed {
			return
		}
		if c.state.CompareAndSwap(int32(old), int32(s)) {
			if old != s && c.onStateChange != nil {
				c.onStateChange(s)
			}
			return
		}
	}
}
