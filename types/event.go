package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"gorm.io/datatypes"
)

// Lifecycle event kinds recorded in the event log.
const (
	EventKindRoomCreated    = "room_created"
	EventKindHostRejoined   = "host_rejoined"
	EventKindPlayerJoined   = "player_joined"
	EventKindPlayerRejoined = "player_rejoined"
	EventKindPlayerLeft     = "player_left"
	EventKindHostLeft       = "host_left"
	EventKindRoomDeleted    = "room_deleted"
)

// RoomEvent is one entry of the lifecycle event log. It is an audit trail only, rooms are never
// restored from it.
type RoomEvent struct {
	Id           string         `json:"id" gorm:"primaryKey" hash:"ignore"`
	RoomCode     string         `json:"room_code" gorm:"index"`
	Kind         string         `json:"kind"`
	ConnectionId string         `json:"connection_id"`
	MemberName   string         `json:"member_name"`
	Players      datatypes.JSON `json:"players"`
	Created      int64          `json:"created" gorm:"index"` // unix nanoseconds, indexed in buntdb as a number
}

// NewRoomEvent builds an event for the given room snapshot and assigns its id.
func NewRoomEvent(kind string, room Room, member Member) *RoomEvent {
	players, err := json.Marshal(room.Members)
	if err != nil {
		players = []byte("[]")
	}
	event := &RoomEvent{
		RoomCode:     room.Code,
		Kind:         kind,
		ConnectionId: member.ConnectionID,
		MemberName:   member.Name,
		Players:      datatypes.JSON(players),
		Created:      time.Now().UnixNano(),
	}
	if err := event.CreateId(); err != nil {
		event.Id = strconv.FormatInt(event.Created, 36)
	}
	return event
}

// CreateId derives the id from the hash of the event contents.
func (e *RoomEvent) CreateId() error {
	hash, err := hashstructure.Hash(e, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	e.Id = strconv.FormatUint(hash, 36)
	return nil
}

// CreatedAt returns Created as a time.Time.
func (e *RoomEvent) CreatedAt() time.Time {
	return time.Unix(0, e.Created)
}
