package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/types"
)

// ErrLocked is returned when another process holds the event log.
var ErrLocked = errors.New("event log is locked by another process")

// Persister stores the room lifecycle event log. Room state itself is never persisted.
type Persister interface {
	StoreEvents([]*types.RoomEvent) error
	// GetEventHistory returns the events in (fromTs, toTs], newest first. An empty roomCode
	// selects all rooms, fromIdx/maxCount paginate (maxCount <= 0: no limit).
	GetEventHistory(roomCode string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.RoomEvent, error)
	DeleteEventsBefore(time.Time) (int, error)
	Close() error
}

// NewPersister returns the persister selected by cfg.PersistenceConfig.Type, or nil if none is configured.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "":
		return nil, nil
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
