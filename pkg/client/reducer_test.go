package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/realtime/pkg/types"
)

type fakeAPI struct {
	confirmed json.RawMessage
	err       error
	calls     int
}

func (f *fakeAPI) Apply(_ context.Context, m Mutation) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.confirmed != nil {
		return f.confirmed, nil
	}
	return m.Data, nil
}

type fakeBroadcaster struct {
	events []Mutation
	err    error
}

func (f *fakeBroadcaster) SendEvent(eventType types.MessageType, projectID string, data any) error {
	raw, _ := data.(json.RawMessage)
	f.events = append(f.events, Mutation{Kind: eventType, ProjectID: projectID, Data: raw})
	return f.err
}

func TestApplyLocalConfirmed(t *testing.T) {
	api := &fakeAPI{confirmed: json.RawMessage(`{"id":"t1","title":"ship it","rev":2}`)}
	bc := &fakeBroadcaster{}
	r := NewReducer(api, bc)
	r.Seed("t1", json.RawMessage(`{"id":"t1","title":"draft","rev":1}`))

	err := r.ApplyLocal(context.Background(), Mutation{
		Kind:      types.EventTaskUpdate,
		ProjectID: "p1",
		ObjectID:  "t1",
		Data:      json.RawMessage(`{"id":"t1","title":"ship it"}`),
	})
	require.NoError(t, err)

	// Local state ends at the confirmed shape, not the optimistic one.
	got, ok := r.Get("t1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"t1","title":"ship it","rev":2}`, string(got))

	// Exactly one broadcast, carrying the confirmed state.
	require.Len(t, bc.events, 1)
	assert.Equal(t, types.EventTaskUpdate, bc.events[0].Kind)
	assert.Equal(t, "p1", bc.events[0].ProjectID)
	assert.JSONEq(t, `{"id":"t1","title":"ship it","rev":2}`, string(bc.events[0].Data))
}

func TestApplyLocalRollbackIsBitIdentical(t *testing.T) {
	// Key order and whitespace must survive the rollback untouched.
	original := json.RawMessage(`{"z":1,  "a":2}`)

	api := &fakeAPI{err: errors.New("conflict")}
	bc := &fakeBroadcaster{}
	r := NewReducer(api, bc)
	r.Seed("t1", original)

	err := r.ApplyLocal(context.Background(), Mutation{
		Kind:     types.EventTaskUpdate,
		ObjectID: "t1",
		Data:     json.RawMessage(`{"a":3,"z":4}`),
	})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "t1", perr.ObjectID)

	got, ok := r.Get("t1")
	require.True(t, ok)
	assert.Equal(t, []byte(original), []byte(got))

	assert.Empty(t, bc.events, "rejected mutations must not broadcast")
}

func TestApplyLocalRollbackRemovesCreatedObject(t *testing.T) {
	api := &fakeAPI{err: errors.New("quota exceeded")}
	r := NewReducer(api, &fakeBroadcaster{})

	err := r.ApplyLocal(context.Background(), Mutation{
		Kind:     types.EventTaskCreate,
		ObjectID: "t9",
		Data:     json.RawMessage(`{"id":"t9"}`),
	})
	require.Error(t, err)

	_, ok := r.Get("t9")
	assert.False(t, ok, "object that never existed must not survive rollback")
}

func TestApplyLocalBroadcastFailureIsNotFatal(t *testing.T) {
	api := &fakeAPI{}
	bc := &fakeBroadcaster{err: errors.New("not connected")}
	r := NewReducer(api, bc)

	err := r.ApplyLocal(context.Background(), Mutation{
		Kind:     types.EventTaskCreate,
		ObjectID: "t1",
		Data:     json.RawMessage(`{"id":"t1"}`),
	})
	require.NoError(t, err, "a durable mutation must not fail on broadcast errors")

	_, ok := r.Get("t1")
	assert.True(t, ok)
}

func TestApplyRemoteLastWriteWins(t *testing.T) {
	r := NewReducer(&fakeAPI{}, nil)
	r.Seed("t1", json.RawMessage(`{"title":"mine"}`))

	r.ApplyRemote("t1", json.RawMessage(`{"title":"theirs"}`))

	got, ok := r.Get("t1")
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"theirs"}`, string(got))
}

func TestApplyRemoteOverwritesOptimisticState(t *testing.T) {
	// A slow persistence API holds ApplyLocal mid-flight while a remote
	// event lands. The remote write sticks until confirmation returns.
	block := make(chan struct{})
	api := &blockingAPI{release: block, started: make(chan struct{})}
	r := NewReducer(api, nil)
	r.Seed("t1", json.RawMessage(`{"v":"base"}`))

	done := make(chan error, 1)
	go func() {
		done <- r.ApplyLocal(context.Background(), Mutation{
			Kind:     types.EventTaskUpdate,
			ObjectID: "t1",
			Data:     json.RawMessage(`{"v":"local"}`),
		})
	}()

	<-api.started
	r.ApplyRemote("t1", json.RawMessage(`{"v":"remote"}`))

	got, _ := r.Get("t1")
	assert.JSONEq(t, `{"v":"remote"}`, string(got))

	close(block)
	require.NoError(t, <-done)

	// Confirmation lands after the remote write and wins: last writer.
	got, _ = r.Get("t1")
	assert.JSONEq(t, `{"v":"local"}`, string(got))
}

func TestRemove(t *testing.T) {
	r := NewReducer(&fakeAPI{}, nil)
	r.Seed("t1", json.RawMessage(`{}`))

	r.Remove("t1")

	_, ok := r.Get("t1")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewReducer(&fakeAPI{}, nil)
	r.Seed("t1", json.RawMessage(`{"v":1}`))

	got, _ := r.Get("t1")
	got[0] = 'X'

	fresh, _ := r.Get("t1")
	assert.Equal(t, json.RawMessage(`{"v":1}`), fresh)
}

type blockingAPI struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingAPI) Apply(_ context.Context, m Mutation) (json.RawMessage, error) {
	close(b.started)
	<-b.release
	return m.Data, nil
}
