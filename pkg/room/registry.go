package room

import (
	"time"

	"github.com/flowdeck/realtime/pkg/types"
)

// Registry is the process-wide table mapping a project id to the set of
// connections currently associated with it.
//
// Registry is NOT safe for concurrent use. It is owned exclusively by the
// session hub's event loop, which executes every membership mutation to
// completion before the next one begins; that single-owner discipline is
// what serializes join/leave for a given room without locks. Do not reach
// into a Registry from any other goroutine.
type Registry struct {
	rooms map[string]*Room
}

// Room tracks the membership of one project. Created lazily on first join,
// deleted as soon as the last member leaves.
type Room struct {
	ProjectID string
	members   map[string]types.Member // keyed by connection id
}

// Departure records one membership removed by RemoveConnectionEverywhere.
type Departure struct {
	ProjectID string
	Member    types.Member
	// Remaining is the room's member count after the removal; zero means
	// the room was deleted.
	Remaining int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Join adds a membership entry for the connection, creating the room if
// absent. Idempotent: joining a room the connection is already in is a
// no-op and reports joined=false. The returned slice is the room's full
// current membership including the new entry, for building a presence
// snapshot.
func (r *Registry) Join(connectionID, projectID string, identity types.Identity, now time.Time) (members []types.Member, joined bool) {
	rm, ok := r.rooms[projectID]
	if !ok {
		rm = &Room{
			ProjectID: projectID,
			members:   make(map[string]types.Member),
		}
		r.rooms[projectID] = rm
	}

	if _, exists := rm.members[connectionID]; exists {
		return rm.snapshot(), false
	}

	rm.members[connectionID] = types.Member{
		ConnectionID: connectionID,
		UserID:       identity.UserID,
		Name:         identity.Name,
		Avatar:       identity.Avatar,
		JoinedAt:     now,
	}
	return rm.snapshot(), true
}

// Leave removes the connection's membership entry if present; no-op
// otherwise. An emptied room is deleted from the registry immediately.
func (r *Registry) Leave(connectionID, projectID string) (member types.Member, ok bool) {
	rm, exists := r.rooms[projectID]
	if !exists {
		return types.Member{}, false
	}
	member, ok = rm.members[connectionID]
	if !ok {
		return types.Member{}, false
	}

	delete(rm.members, connectionID)
	if len(rm.members) == 0 {
		delete(r.rooms, projectID)
	}
	return member, true
}

// RemoveConnectionEverywhere removes the connection from every room it
// belongs to, cleaning up emptied rooms as it goes. Called exactly once on
// disconnect; safe to call for a connection that never joined anything.
func (r *Registry) RemoveConnectionEverywhere(connectionID string) []Departure {
	var departures []Departure
	for projectID, rm := range r.rooms {
		member, ok := rm.members[connectionID]
		if !ok {
			continue
		}
		delete(rm.members, connectionID)
		remaining := len(rm.members)
		if remaining == 0 {
			delete(r.rooms, projectID)
		}
		departures = append(departures, Departure{
			ProjectID: projectID,
			Member:    member,
			Remaining: remaining,
		})
	}
	return departures
}

// MembersOf returns a snapshot of the room's current membership, or nil if
// no room is tracked for the project.
func (r *Registry) MembersOf(projectID string) []types.Member {
	rm, ok := r.rooms[projectID]
	if !ok {
		return nil
	}
	return rm.snapshot()
}

// MemberCount returns the room's current size, zero if untracked.
func (r *Registry) MemberCount(projectID string) int {
	rm, ok := r.rooms[projectID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// RoomCount returns the number of tracked rooms.
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

func (rm *Room) snapshot() []types.Member {
	members := make([]types.Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	return members
}
