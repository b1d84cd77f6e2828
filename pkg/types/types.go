package types

import (
	"encoding/json"
	"time"
)

// Identity is the resolved identity of one connected client. It is decoded
// from the session credential exactly once at handshake time and never
// refreshed for the lifetime of the connection.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Member is one (room, connection) membership entry. It is an immutable
// snapshot of the owning connection's identity taken at join time; a rename
// mid-session is not reflected without rejoining.
type Member struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// MessageType discriminates wire messages exchanged over a session channel.
type MessageType string

// Membership control messages (client to server).
const (
	MessageJoinProject  MessageType = "join-project"
	MessageLeaveProject MessageType = "leave-project"
)

// Heartbeat pair.
const (
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
)

// Presence notifications (server to client).
const (
	MessageUsersActive MessageType = "users:active"
	MessageUsersCount  MessageType = "users:count"
	MessageUserJoined  MessageType = "user:joined"
	MessageUserLeft    MessageType = "user:left"
)

// Domain events. Each is fire-and-forget and carries a projectId routing
// key; the server relays it verbatim to every other member of the room.
const (
	EventTaskCreate     MessageType = "task:create"
	EventTaskUpdate     MessageType = "task:update"
	EventTaskDelete     MessageType = "task:delete"
	EventTaskMove       MessageType = "task:move"
	EventCanvasUpdate   MessageType = "canvas:update"
	EventCanvasCursor   MessageType = "canvas:cursor"
	EventMarkdownUpdate MessageType = "markdown:update"
	EventMarkdownCursor MessageType = "markdown:cursor"
	EventTypingStart    MessageType = "typing:start"
	EventTypingStop     MessageType = "typing:stop"
)

var domainEvents = map[MessageType]bool{
	EventTaskCreate:     true,
	EventTaskUpdate:     true,
	EventTaskDelete:     true,
	EventTaskMove:       true,
	EventCanvasUpdate:   true,
	EventCanvasCursor:   true,
	EventMarkdownUpdate: true,
	EventMarkdownCursor: true,
	EventTypingStart:    true,
	EventTypingStop:     true,
}

// IsDomainEvent reports whether t is a routable domain event as opposed to
// a membership, presence, or heartbeat message.
func IsDomainEvent(t MessageType) bool {
	return domainEvents[t]
}

// Message is the wire envelope: a type discriminator plus a type-specific
// payload. Payloads are kept raw so the router can relay them without
// understanding their shape.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals the envelope into a single frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses one frame into an envelope. The payload is left raw.
func DecodeMessage(frame []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ProjectPayload is the payload of join-project and leave-project messages.
type ProjectPayload struct {
	ProjectID string `json:"projectId"`
}

// EventPayload is the common shape of every domain event payload: the
// routing key plus kind-specific data this subsystem never interprets.
type EventPayload struct {
	ProjectID string          `json:"projectId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RosterUser is the wire shape of one room member in presence payloads.
type RosterUser struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// UsersActivePayload is the full roster sent to a connection whose own
// membership just changed state.
type UsersActivePayload struct {
	ProjectID string       `json:"projectId"`
	Users     []RosterUser `json:"users"`
	Count     int          `json:"count"`
}

// UserJoinedPayload is the incremental notification sent to existing
// members when someone joins.
type UserJoinedPayload struct {
	ProjectID string     `json:"projectId"`
	User      RosterUser `json:"user"`
}

// UserLeftPayload is the incremental notification sent to remaining
// members when someone leaves.
type UserLeftPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

// UsersCountPayload carries the updated roster size after a membership
// change.
type UsersCountPayload struct {
	ProjectID string `json:"projectId"`
	Count     int    `json:"count"`
}
