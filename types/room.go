package types

import "time"

// RoomState is derived from the registry and the pending deletion table, it is never stored.
type RoomState string

const (
	RoomStateActive  RoomState = "active"
	RoomStateGrace   RoomState = "grace"
	RoomStateDeleted RoomState = "deleted"
)

// Member is a room participant. The name is the identity used to match reconnects,
// the connection id is only used for delivery and changes on every reconnect.
type Member struct {
	ConnectionID string `json:"id"`
	Name         string `json:"name"`
}

// Room is one party-game session, keyed by its code.
// HostConnectionID is empty while the host is inside its grace period.
type Room struct {
	Code             string    `json:"code"`
	HostName         string    `json:"host_name"`
	HostConnectionID string    `json:"host_id"`
	Members          []Member  `json:"players"`
	CreatedAt        time.Time `json:"created_at"`
}

// Clone returns a deep copy, the registry only hands out clones.
func (r *Room) Clone() Room {
	c := *r
	c.Members = make([]Member, len(r.Members))
	copy(c.Members, r.Members)
	return c
}

// MemberByName returns the index of the member with the given name or -1.
func (r *Room) MemberByName(name string) int {
	for i, m := range r.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// MemberByConnection returns the index of the member with the given connection id or -1.
func (r *Room) MemberByConnection(connectionID string) int {
	if connectionID == "" {
		return -1
	}
	for i, m := range r.Members {
		if m.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}

// IsHost reports whether connectionID is the currently present host.
func (r *Room) IsHost(connectionID string) bool {
	return connectionID != "" && r.HostConnectionID == connectionID
}
