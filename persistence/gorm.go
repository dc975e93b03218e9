package persistence

import (
	"fmt"
	"math"
	"time"

	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&types.RoomEvent{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) StoreEvents(events []*types.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&events).Error
}

func (p *GormPersist) GetEventHistory(roomCode string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.RoomEvent, error) {
	events := make([]*types.RoomEvent, 0)
	q := p.db.Where("created > ? AND created <= ?", fromTs.UnixNano(), toTs.UnixNano())
	if roomCode != "" {
		q = q.Where("room_code = ?", roomCode)
	}
	q = q.Order("created DESC")
	if maxCount > 0 {
		q = q.Limit(maxCount)
	} else if fromIdx > 0 {
		// sqlite does not accept OFFSET without LIMIT
		q = q.Limit(math.MaxInt32)
	}
	if fromIdx > 0 {
		q = q.Offset(fromIdx)
	}
	err := q.Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (p *GormPersist) DeleteEventsBefore(ts time.Time) (int, error) {
	res := p.db.Where("created < ?", ts.UnixNano()).Delete(&types.RoomEvent{})
	return int(res.RowsAffected), res.Error
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
