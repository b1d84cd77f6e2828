package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flowdeck/realtime/pkg/log"
	"github.com/flowdeck/realtime/pkg/types"
)

// PersistenceError reports a rejected mutation. The local state has
// already been rolled back when the caller sees it.
type PersistenceError struct {
	Kind     types.MessageType
	ObjectID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence rejected %s for %s: %v", e.Kind, e.ObjectID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Mutation describes one local change to a shared object.
type Mutation struct {
	Kind      types.MessageType
	ProjectID string
	ObjectID  string
	Data      json.RawMessage
}

// PersistenceAPI is the authoritative store behind the reducer. Apply
// returns the confirmed object state, which may differ from the
// optimistic one (server-assigned fields, timestamps).
type PersistenceAPI interface {
	Apply(ctx context.Context, m Mutation) (json.RawMessage, error)
}

// Broadcaster publishes a confirmed mutation to the rest of the room.
// *Client satisfies it.
type Broadcaster interface {
	SendEvent(eventType types.MessageType, projectID string, data any) error
}

// Reducer reconciles local optimistic mutations with the persistence API
// and with remote events relayed by the session layer. Local mutations are
// applied immediately, then confirmed or rolled back; remote events are
// applied last-write-wins, overwriting whatever is held locally.
type Reducer struct {
	mu      sync.Mutex
	objects map[string]json.RawMessage

	api       PersistenceAPI
	broadcast Broadcaster
	logger    zerolog.Logger
}

// NewReducer creates a reducer over the given persistence API. broadcast
// may be nil for read-only consumers.
func NewReducer(api PersistenceAPI, broadcast Broadcaster) *Reducer {
	return &Reducer{
		objects:   make(map[string]json.RawMessage),
		api:       api,
		broadcast: broadcast,
		logger:    log.WithComponent("reducer"),
	}
}

// Seed installs the authoritative state for an object, typically after a
// fetch from the persistence API on load or resync.
func (r *Reducer) Seed(objectID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[objectID] = clone(data)
}

// Get returns a copy of the object's current local state.
func (r *Reducer) Get(objectID string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.objects[objectID]
	if !ok {
		return nil, false
	}
	return clone(data), true
}

// ApplyLocal applies a mutation optimistically, persists it, and on
// success broadcasts exactly once with the confirmed state. On failure
// the object reverts to the exact bytes it held before the mutation and
// nothing is broadcast.
func (r *Reducer) ApplyLocal(ctx context.Context, m Mutation) error {
	r.mu.Lock()
	prev, existed := r.objects[m.ObjectID]
	snapshot := clone(prev)
	r.objects[m.ObjectID] = clone(m.Data)
	r.mu.Unlock()

	confirmed, err := r.api.Apply(ctx, m)
	if err != nil {
		r.mu.Lock()
		if existed {
			r.objects[m.ObjectID] = snapshot
		} else {
			delete(r.objects, m.ObjectID)
		}
		r.mu.Unlock()
		r.logger.Warn().
			Err(err).
			Str("object_id", m.ObjectID).
			Str("kind", string(m.Kind)).
			Msg("mutation rejected, rolled back")
		return &PersistenceError{Kind: m.Kind, ObjectID: m.ObjectID, Err: err}
	}

	r.mu.Lock()
	r.objects[m.ObjectID] = clone(confirmed)
	r.mu.Unlock()

	if r.broadcast != nil {
		if err := r.broadcast.SendEvent(m.Kind, m.ProjectID, json.RawMessage(confirmed)); err != nil {
			// The mutation is durable; peers catch up on their next
			// resync. Surfacing the send failure would wrongly imply
			// the local change failed.
			r.logger.Warn().Err(err).Str("object_id", m.ObjectID).Msg("broadcast failed")
		}
	}
	return nil
}

// ApplyRemote applies a relayed event from another member. The remote
// state overwrites the local one unconditionally, including any
// unconfirmed optimistic state.
func (r *Reducer) ApplyRemote(objectID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[objectID] = clone(data)
}

// Remove drops an object, for delete events.
func (r *Reducer) Remove(objectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, objectID)
}

func clone(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
