package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/globals"
	"github.com/tcriess/lightspeed-relay/types"
	"github.com/tidwall/buntdb"
)

const eventIndex = "eventsts"

type BuntDBPersist struct {
	db   *buntdb.DB
	lock *flock.Flock
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	var lock *flock.Flock
	if cfg.PersistenceConfig.LockPath != "" {
		lock = flock.New(cfg.PersistenceConfig.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("could not lock %s: %w", cfg.PersistenceConfig.LockPath, err)
		}
		if !locked {
			return nil, ErrLocked
		}
	}
	db, err := setupBuntDB(cfg.PersistenceConfig.DSN)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, lock: lock}, nil
}

func setupBuntDB(fileName string) (*buntdb.DB, error) {
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(eventIndex, "event:*", buntdb.IndexJSON("created"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createdCond(ts time.Time) string {
	return fmt.Sprintf(`{"created":%d}`, ts.UnixNano())
}

func (p *BuntDBPersist) StoreEvents(events []*types.RoomEvent) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, event := range events {
			msg, err := json.Marshal(event)
			if err != nil {
				globals.AppLogger.Error("could not marshal event", "error", err)
				return err
			}
			_, _, err = tx.Set("event:"+event.Id, string(msg), nil)
			if err != nil {
				globals.AppLogger.Error("could not store event", "error", err)
				return err
			}
		}
		return nil
	})
}

// GetEventHistory returns a slice of events from db.
//
// Use fromTs/toTs to restrict the time range, and fromIdx/maxCount for pagination.
func (p *BuntDBPersist) GetEventHistory(roomCode string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.RoomEvent, error) {
	events := make([]*types.RoomEvent, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange(eventIndex, createdCond(toTs), createdCond(fromTs), func(key, val string) bool {
			event := &types.RoomEvent{}
			if err := json.Unmarshal([]byte(val), event); err != nil {
				globals.AppLogger.Warn("skipping unreadable event", "key", key, "error", err)
				return true
			}
			if roomCode != "" && event.RoomCode != roomCode {
				return true
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			events = append(events, event)
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return events, err
}

func (p *BuntDBPersist) DeleteEventsBefore(ts time.Time) (int, error) {
	deleted := 0
	err := p.db.Update(func(tx *buntdb.Tx) error {
		keys := make([]string, 0)
		err := tx.AscendLessThan(eventIndex, createdCond(ts), func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.lock != nil {
		if unlockErr := p.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}
