package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-relay/types"
)

type fakeTimer struct {
	stopped int
}

func (t *fakeTimer) Stop() bool {
	t.stopped++
	return t.stopped == 1
}

func names(rm types.Room) []string {
	res := make([]string, 0, len(rm.Members))
	for _, m := range rm.Members {
		res = append(res, m.Name)
	}
	return res
}

func TestCreateNewRoom(t *testing.T) {
	r := NewRegistry()
	res := r.Create("ABCD", "Alice", "c1")
	assert.Equal(t, CreatedNew, res.Outcome)
	assert.Equal(t, "c1", res.Room.HostConnectionID)
	assert.Equal(t, "Alice", res.Room.HostName)
	assert.Equal(t, []types.Member{{ConnectionID: "c1", Name: "Alice"}}, res.Room.Members)
	assert.Equal(t, types.RoomStateActive, r.State("ABCD"))
	assert.Equal(t, []string{"ABCD"}, r.RoomsOf("c1"))
}

func TestCreateExistingIsHostReconnect(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	_, _, err := r.UpsertMember("ABCD", "Bob", "c2")
	require.NoError(t, err)

	res := r.Create("ABCD", "Alice", "c3")
	assert.Equal(t, HostRejoined, res.Outcome)
	assert.True(t, res.Rejoined)
	assert.False(t, res.CanceledGrace)
	assert.Equal(t, "c3", res.Room.HostConnectionID)
	assert.Equal(t, []string{"Alice", "Bob"}, names(res.Room))
	assert.Empty(t, r.RoomsOf("c1"))
	assert.Equal(t, []string{"ABCD"}, r.RoomsOf("c3"))
}

func TestCreateWithOtherNameUpsertsGuest(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	res := r.Create("ABCD", "Mallory", "c2")
	assert.Equal(t, GuestUpserted, res.Outcome)
	assert.Equal(t, "c1", res.Room.HostConnectionID)
	assert.Equal(t, []string{"Alice", "Mallory"}, names(res.Room))
}

func TestUpsertMember(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.UpsertMember("NOPE", "Bob", "c2")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, ok := r.Get("NOPE")
	assert.False(t, ok)

	r.Create("ABCD", "Alice", "c1")
	rm, rejoined, err := r.UpsertMember("ABCD", "Bob", "c2")
	require.NoError(t, err)
	assert.False(t, rejoined)
	rm, _, err = r.UpsertMember("ABCD", "Carol", "c3")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names(rm))

	// Bob reconnects: same position, new connection id
	rm, rejoined, err = r.UpsertMember("ABCD", "Bob", "c4")
	require.NoError(t, err)
	assert.True(t, rejoined)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names(rm))
	assert.Equal(t, "c4", rm.Members[1].ConnectionID)
	assert.Empty(t, r.RoomsOf("c2"))
}

func TestUpsertHostNameKeepsHostRole(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	rm, rejoined, err := r.UpsertMember("ABCD", "Alice", "c9")
	require.NoError(t, err)
	assert.True(t, rejoined)
	assert.Equal(t, "c9", rm.HostConnectionID)
	assert.Len(t, rm.Members, 1)
}

func TestRemoveGuest(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	r.UpsertMember("ABCD", "Bob", "c2")

	_, ok := r.RemoveMember("ABCD", "unknown")
	assert.False(t, ok)

	removal, ok := r.RemoveMember("ABCD", "c2")
	require.True(t, ok)
	assert.False(t, removal.WasHost)
	assert.Nil(t, removal.Pending)
	assert.Equal(t, "Bob", removal.Member.Name)
	assert.Equal(t, "c1", removal.Room.HostConnectionID)
	assert.False(t, r.InGrace("ABCD"))
}

func TestRemoveHostStartsGraceAndRejoinRestoresSlot(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	r.UpsertMember("ABCD", "Bob", "c2")
	r.Create("ABCD", "Alice", "c1") // no-op rejoin on the same connection
	r.UpsertMember("ABCD", "Carol", "c3")

	removal, ok := r.RemoveMember("ABCD", "c1")
	require.True(t, ok)
	assert.True(t, removal.WasHost)
	require.NotNil(t, removal.Pending)
	assert.Equal(t, 0, removal.Pending.HostIndex)
	assert.Equal(t, "", removal.Room.HostConnectionID)
	assert.Equal(t, []string{"Bob", "Carol"}, names(removal.Room))
	assert.Equal(t, types.RoomStateGrace, r.State("ABCD"))

	timer := &fakeTimer{}
	require.True(t, r.ArmGrace(removal.Pending, timer))

	res := r.Create("ABCD", "Alice", "c5")
	assert.Equal(t, HostRejoined, res.Outcome)
	assert.True(t, res.CanceledGrace)
	assert.Equal(t, 1, timer.stopped)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names(res.Room))
	assert.Equal(t, "c5", res.Room.HostConnectionID)
	assert.Equal(t, types.RoomStateActive, r.State("ABCD"))

	// the old pending deletion is stale now
	_, expired := r.Expire(removal.Pending)
	assert.False(t, expired)
	_, ok = r.Get("ABCD")
	assert.True(t, ok)
}

func TestExpireDeletesRoom(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	r.UpsertMember("ABCD", "Bob", "c2")
	removal, _ := r.RemoveMember("ABCD", "c1")

	last, ok := r.Expire(removal.Pending)
	require.True(t, ok)
	assert.Equal(t, []string{"Bob"}, names(last))
	_, ok = r.Get("ABCD")
	assert.False(t, ok)
	assert.Equal(t, types.RoomStateDeleted, r.State("ABCD"))
	assert.Empty(t, r.RoomsOf("c2"))

	// a later create starts from scratch
	res := r.Create("ABCD", "Alice", "c7")
	assert.Equal(t, CreatedNew, res.Outcome)
	assert.Equal(t, []string{"Alice"}, names(res.Room))
}

func TestGraceSurvivesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	r.UpsertMember("ABCD", "Bob", "c2")
	r.RemoveMember("ABCD", "c1")
	r.RemoveMember("ABCD", "c2")

	rm, ok := r.Get("ABCD")
	require.True(t, ok)
	assert.Empty(t, rm.Members)

	res := r.Create("ABCD", "Alice", "c3")
	assert.Equal(t, HostRejoined, res.Outcome)
	assert.Equal(t, []string{"Alice"}, names(res.Room))
}

func TestCancelGraceIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	removal, _ := r.RemoveMember("ABCD", "c1")
	timer := &fakeTimer{}
	r.ArmGrace(removal.Pending, timer)

	assert.True(t, r.CancelGrace("ABCD"))
	assert.False(t, r.CancelGrace("ABCD"))
	assert.False(t, r.CancelGrace("OTHER"))
	assert.False(t, r.ArmGrace(removal.Pending, &fakeTimer{}))
}

func TestNamesStayUnique(t *testing.T) {
	r := NewRegistry()
	r.Create("ABCD", "Alice", "c1")
	steps := []struct {
		name, conn string
		remove     bool
	}{
		{"Bob", "c2", false},
		{"Bob", "c3", false},
		{"Alice", "c4", false},
		{"Bob", "c3", true},
		{"Bob", "c5", false},
		{"Carol", "c6", false},
		{"Carol", "c7", false},
	}
	for _, step := range steps {
		if step.remove {
			r.RemoveMember("ABCD", step.conn)
		} else {
			r.UpsertMember("ABCD", step.name, step.conn)
		}
		rm, _ := r.Get("ABCD")
		seen := make(map[string]bool)
		for _, m := range rm.Members {
			assert.False(t, seen[m.Name], "duplicate member %s", m.Name)
			seen[m.Name] = true
		}
	}
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	r.Create("A", "Alice", "c1")
	r.Create("B", "Bob", "c2")
	r.UpsertMember("B", "Carol", "c3")
	r.RemoveMember("A", "c1")
	assert.Equal(t, Stats{Rooms: 2, Members: 2, Grace: 1, Connections: 2}, r.Stats())
	assert.Len(t, r.List(), 2)
	assert.Equal(t, "A", r.List()[0].Code)
}
