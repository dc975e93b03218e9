package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tcriess/lightspeed-relay/types"
)

const maxEventBatch = 100

// record queues a lifecycle event for the persister. It never blocks, a full queue drops the event.
func (c *Coordinator) record(kind string, rm types.Room, member types.Member) {
	if c.events == nil {
		return
	}
	event := types.NewRoomEvent(kind, rm, member)
	select {
	case c.events <- event:
	default:
		c.logger.Warn("event queue full, dropping lifecycle event", "room", rm.Code, "kind", kind)
	}
}

// Run stores queued lifecycle events and runs the statistics job until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if c.statsCron != "" {
		if _, err := cronRunner.AddFunc(c.statsCron, c.logStats); err != nil {
			return fmt.Errorf("invalid stats cron spec %q: %w", c.statsCron, err)
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flushEvents()
			return nil

		case event := <-c.events:
			c.storeEvents(c.drainEvents(event))
		}
	}
}

// drainEvents collects whatever else is queued behind first, up to maxEventBatch events.
func (c *Coordinator) drainEvents(first *types.RoomEvent) []*types.RoomEvent {
	batch := []*types.RoomEvent{first}
	for len(batch) < maxEventBatch {
		select {
		case event := <-c.events:
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (c *Coordinator) flushEvents() {
	if c.events == nil {
		return
	}
	for {
		select {
		case event := <-c.events:
			c.storeEvents(c.drainEvents(event))
		default:
			return
		}
	}
}

func (c *Coordinator) storeEvents(events []*types.RoomEvent) {
	if err := c.persister.StoreEvents(events); err != nil {
		c.logger.Error("could not persist lifecycle events", "count", len(events), "error", err)
	}
}

func (c *Coordinator) logStats() {
	stats := c.registry.Stats()
	c.logger.Info("registry stats", "rooms", stats.Rooms, "members", stats.Members, "grace", stats.Grace, "connections", stats.Connections)
}
