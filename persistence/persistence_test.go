package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/types"
)

func testEvents(t *testing.T, base time.Time) []*types.RoomEvent {
	room := types.Room{Code: "ABCD", Members: []types.Member{{ConnectionID: "c1", Name: "Alice"}}}
	other := types.Room{Code: "WXYZ", Members: []types.Member{{ConnectionID: "c9", Name: "Zed"}}}
	events := []*types.RoomEvent{
		types.NewRoomEvent(types.EventKindRoomCreated, room, room.Members[0]),
		types.NewRoomEvent(types.EventKindRoomCreated, other, other.Members[0]),
		types.NewRoomEvent(types.EventKindPlayerJoined, room, types.Member{ConnectionID: "c2", Name: "Bob"}),
		types.NewRoomEvent(types.EventKindRoomDeleted, room, types.Member{}),
	}
	for i, event := range events {
		event.Created = base.Add(time.Duration(i) * time.Second).UnixNano()
		require.NoError(t, event.CreateId())
	}
	return events
}

func exercisePersister(t *testing.T, p Persister) {
	base := time.Unix(1700000000, 0)
	events := testEvents(t, base)
	require.NoError(t, p.StoreEvents(events))

	all, err := p.GetEventHistory("", base.Add(-time.Second), base.Add(time.Minute), 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, types.EventKindRoomDeleted, all[0].Kind)
	assert.Equal(t, types.EventKindRoomCreated, all[3].Kind)

	room, err := p.GetEventHistory("ABCD", base.Add(-time.Second), base.Add(time.Minute), 0, 0)
	require.NoError(t, err)
	require.Len(t, room, 3)
	assert.Equal(t, "Bob", room[1].MemberName)
	assert.JSONEq(t, `[{"id":"c1","name":"Alice"}]`, string(room[1].Players))

	page, err := p.GetEventHistory("ABCD", base.Add(-time.Second), base.Add(time.Minute), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, types.EventKindPlayerJoined, page[0].Kind)

	deleted, err := p.DeleteEventsBefore(base.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	rest, err := p.GetEventHistory("", base.Add(-time.Second), base.Add(time.Minute), 0, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestBuntPersister(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.db")
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb", DSN: dsn, LockPath: dsn + ".lock"}}
	p, err := NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	// a second process (or persister) can not open the same log
	_, err = NewPersister(cfg)
	assert.ErrorIs(t, err, ErrLocked)

	exercisePersister(t, p)
	require.NoError(t, p.Close())

	p, err = NewPersister(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestGormPersister(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.sqlite")
	p, err := NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "sqlite", DSN: dsn}})
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close()

	exercisePersister(t, p)

	// storing the same events again is a no-op
	require.NoError(t, p.StoreEvents(testEvents(t, time.Unix(1700000000, 0))[2:]))
}

func TestNewPersisterSelection(t *testing.T) {
	p, err := NewPersister(&config.Config{})
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "redis", DSN: "x"}})
	assert.Error(t, err)
}
