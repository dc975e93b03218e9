package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLookups(t *testing.T) {
	room := Room{
		Code:             "ABCD",
		HostName:         "Alice",
		HostConnectionID: "c1",
		Members:          []Member{{ConnectionID: "c1", Name: "Alice"}, {ConnectionID: "c2", Name: "Bob"}},
	}
	assert.Equal(t, 1, room.MemberByName("Bob"))
	assert.Equal(t, -1, room.MemberByName("bob"))
	assert.Equal(t, 0, room.MemberByConnection("c1"))
	assert.Equal(t, -1, room.MemberByConnection(""))
	assert.True(t, room.IsHost("c1"))
	assert.False(t, room.IsHost("c2"))

	// an absent host has no connection, nobody matches it
	room.HostConnectionID = ""
	assert.False(t, room.IsHost(""))

	clone := room.Clone()
	clone.Members[0].Name = "Mallory"
	assert.Equal(t, "Alice", room.Members[0].Name)
}

func TestNewFrame(t *testing.T) {
	frame, err := NewFrame(WireMessageTypeJoinedRoom, JoinedRoomMessage{
		Success:  true,
		RoomCode: "ABCD",
		Players:  []Member{{ConnectionID: "c1", Name: "Alice"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"joinedRoom","data":{"success":true,"roomCode":"ABCD","playerName":"","players":[{"id":"c1","name":"Alice"}]}}`, string(frame))

	frame, err = NewFrame(WireMessageTypeHostDisconnected, HostDisconnectedMessage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"hostDisconnected","data":{}}`, string(frame))

	frame, err = NewFrame(WireMessageTypeGameData, GameDataMessage{Data: json.RawMessage(`[1,"two"]`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"gameData","data":{"data":[1,"two"]}}`, string(frame))
}

func TestRoomEventId(t *testing.T) {
	room := Room{Code: "ABCD", Members: []Member{{ConnectionID: "c1", Name: "Alice"}}}
	event := NewRoomEvent(EventKindRoomCreated, room, room.Members[0])
	require.NotEmpty(t, event.Id)
	assert.JSONEq(t, `[{"id":"c1","name":"Alice"}]`, string(event.Players))

	// the id does not depend on itself
	id := event.Id
	require.NoError(t, event.CreateId())
	assert.Equal(t, id, event.Id)

	event.Kind = EventKindRoomDeleted
	require.NoError(t, event.CreateId())
	assert.NotEqual(t, id, event.Id)
	assert.Equal(t, event.Created, event.CreatedAt().UnixNano())
}
