package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/realtime/pkg/types"
)

func identity(n int) types.Identity {
	return types.Identity{
		UserID: fmt.Sprintf("user-%d", n),
		Name:   fmt.Sprintf("User %d", n),
	}
}

func TestJoin_CreatesRoomAndReturnsRoster(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	members, joined := reg.Join("conn-1", "p1", identity(1), now)
	assert.True(t, joined)
	require.Len(t, members, 1)
	assert.Equal(t, "user-1", members[0].UserID)
	assert.Equal(t, "conn-1", members[0].ConnectionID)
	assert.Equal(t, now, members[0].JoinedAt)
	assert.Equal(t, 1, reg.RoomCount())

	members, joined = reg.Join("conn-2", "p1", identity(2), now)
	assert.True(t, joined)
	assert.Len(t, members, 2)
}

func TestJoin_Idempotent(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	reg.Join("conn-1", "p1", identity(1), now)
	members, joined := reg.Join("conn-1", "p1", identity(1), now.Add(time.Minute))

	assert.False(t, joined)
	require.Len(t, members, 1)
	// The original join timestamp is preserved.
	assert.Equal(t, now, members[0].JoinedAt)
}

func TestLeave_DeletesEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Join("conn-1", "p1", identity(1), time.Now())

	member, ok := reg.Leave("conn-1", "p1")
	assert.True(t, ok)
	assert.Equal(t, "user-1", member.UserID)
	assert.Equal(t, 0, reg.RoomCount())
	assert.Nil(t, reg.MembersOf("p1"))
}

func TestLeave_NoOpWhenAbsent(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Leave("conn-1", "p1")
	assert.False(t, ok)

	reg.Join("conn-1", "p1", identity(1), time.Now())
	_, ok = reg.Leave("conn-2", "p1")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.MemberCount("p1"))
}

// The roster must equal the net effect of any join/leave sequence from the
// single sequential caller: no lost or duplicated entries.
func TestRegistry_NetEffect(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	ops := []struct {
		join bool
		conn string
	}{
		{true, "a"}, {true, "b"}, {true, "c"},
		{false, "b"},
		{true, "d"}, {true, "b"},
		{false, "a"}, {false, "a"}, // second leave is a no-op
	}

	want := map[string]bool{}
	for i, op := range ops {
		if op.join {
			reg.Join(op.conn, "p1", identity(i), now)
			want[op.conn] = true
		} else {
			reg.Leave(op.conn, "p1")
			delete(want, op.conn)
		}
	}

	got := map[string]bool{}
	for _, m := range reg.MembersOf("p1") {
		assert.False(t, got[m.ConnectionID], "duplicate entry for %s", m.ConnectionID)
		got[m.ConnectionID] = true
	}
	assert.Equal(t, want, got)
}

func TestRemoveConnectionEverywhere(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	// conn-1 is in p1 and p2 (two tabs), conn-2 only in p1.
	reg.Join("conn-1", "p1", identity(1), now)
	reg.Join("conn-1", "p2", identity(1), now)
	reg.Join("conn-2", "p1", identity(2), now)

	departures := reg.RemoveConnectionEverywhere("conn-1")
	require.Len(t, departures, 2)

	byProject := map[string]Departure{}
	for _, d := range departures {
		byProject[d.ProjectID] = d
	}
	assert.Equal(t, 1, byProject["p1"].Remaining)
	assert.Equal(t, 0, byProject["p2"].Remaining)

	// p1 keeps its other member, p2 is gone.
	assert.Equal(t, 1, reg.MemberCount("p1"))
	assert.Equal(t, 1, reg.RoomCount())
}

func TestRemoveConnectionEverywhere_NeverJoined(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.RemoveConnectionEverywhere("ghost"))
}

func TestMembersOf_IsASnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Join("conn-1", "p1", identity(1), time.Now())

	snapshot := reg.MembersOf("p1")
	reg.Leave("conn-1", "p1")

	// The earlier snapshot is unaffected by later mutations.
	assert.Len(t, snapshot, 1)
}
