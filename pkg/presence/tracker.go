package presence

import (
	"encoding/json"
	"sort"

	"github.com/flowdeck/realtime/pkg/types"
)

// Tracker derives the "who's active" view from room membership and builds
// the notifications broadcast on every membership change.
//
// Notifications are dual-shape: the one connection whose membership just
// changed state receives a full roster (it has no prior state to diff
// against), while existing members receive only the joined/left delta plus
// an updated count.
type Tracker struct{}

// New creates a tracker.
func New() *Tracker {
	return &Tracker{}
}

// Notification is a set of encoded frames produced by one membership
// change: ToChanged goes to the connection that joined or left, ToOthers
// to everyone else still in the room.
type Notification struct {
	ToChanged [][]byte
	ToOthers  [][]byte
}

// Joined builds the notifications for a member that just joined. members
// is the room's full membership including the new entry.
func (t *Tracker) Joined(projectID string, joined types.Member, members []types.Member) (*Notification, error) {
	snapshot, err := encode(types.MessageUsersActive, types.UsersActivePayload{
		ProjectID: projectID,
		Users:     roster(members),
		Count:     len(members),
	})
	if err != nil {
		return nil, err
	}
	delta, err := encode(types.MessageUserJoined, types.UserJoinedPayload{
		ProjectID: projectID,
		User:      rosterUser(joined),
	})
	if err != nil {
		return nil, err
	}
	count, err := encode(types.MessageUsersCount, types.UsersCountPayload{
		ProjectID: projectID,
		Count:     len(members),
	})
	if err != nil {
		return nil, err
	}

	return &Notification{
		ToChanged: [][]byte{snapshot},
		ToOthers:  [][]byte{delta, count},
	}, nil
}

// Left builds the notifications for a member that just left. remaining is
// the room's member count after the removal; the leaver gets no farewell.
func (t *Tracker) Left(projectID string, left types.Member, remaining int) (*Notification, error) {
	delta, err := encode(types.MessageUserLeft, types.UserLeftPayload{
		ProjectID: projectID,
		UserID:    left.UserID,
	})
	if err != nil {
		return nil, err
	}
	count, err := encode(types.MessageUsersCount, types.UsersCountPayload{
		ProjectID: projectID,
		Count:     remaining,
	})
	if err != nil {
		return nil, err
	}

	return &Notification{
		ToOthers: [][]byte{delta, count},
	}, nil
}

// roster converts membership entries into the wire shape, ordered by join
// time so clients render a stable list.
func roster(members []types.Member) []types.RosterUser {
	users := make([]types.RosterUser, 0, len(members))
	for _, m := range members {
		users = append(users, rosterUser(m))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

func rosterUser(m types.Member) types.RosterUser {
	return types.RosterUser{
		UserID:   m.UserID,
		Name:     m.Name,
		Avatar:   m.Avatar,
		JoinedAt: m.JoinedAt,
	}
}

func encode(t types.MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg := types.Message{Type: t, Payload: raw}
	return msg.Encode()
}
