// Package session drives room membership from connection events.
//
// The Coordinator reacts to createRoom, joinRoom, relay and disconnect events, mutates the
// room.Registry and emits the resulting notifications through a Transport. It also runs the
// host grace period: when a host drops, the room survives for a fixed delay and is deleted only
// if the host has not come back by then.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-relay/filter"
	"github.com/tcriess/lightspeed-relay/globals"
	"github.com/tcriess/lightspeed-relay/persistence"
	"github.com/tcriess/lightspeed-relay/room"
	"github.com/tcriess/lightspeed-relay/types"
)

const (
	DefaultGracePeriod    = 5 * time.Second
	defaultEventQueueSize = 1000
	roomNotFoundMessage   = "Room not found"
)

// Transport is what the coordinator needs from the connection layer: delivery groups keyed by
// room code and best-effort delivery to a single connection.
type Transport interface {
	// Join adds the connection to the delivery group of the room.
	Join(connectionID, roomCode string)
	// Disband empties the delivery group of the room.
	Disband(roomCode string)
	// Members returns the connection ids currently in the delivery group.
	Members(roomCode string) []string
	// Send queues frame for the connection, false if it is gone or its queue is full.
	Send(connectionID string, frame []byte) bool
}

type Option func(*Coordinator)

func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.gracePeriod = d
		}
	}
}

// WithPersister enables the lifecycle event log.
func WithPersister(p persistence.Persister) Option {
	return func(c *Coordinator) {
		c.persister = p
	}
}

func WithEventQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.eventQueueSize = n
		}
	}
}

func WithFilterCache(cache *filter.Cache) Option {
	return func(c *Coordinator) {
		c.filters = cache
	}
}

// WithStatsCron sets the cron spec of the statistics job started by Run, empty disables it.
func WithStatsCron(spec string) Option {
	return func(c *Coordinator) {
		c.statsCron = spec
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

type afterFunc func(time.Duration, func()) room.Stopper

// Coordinator is the single authority over room membership. Every registry mutation and the
// notifications it causes happen under mu, so members observe notifications in mutation order.
type Coordinator struct {
	registry  *room.Registry
	transport Transport

	gracePeriod time.Duration
	afterFunc   afterFunc
	newName     func() string

	filters *filter.Cache

	persister      persistence.Persister
	eventQueueSize int
	events         chan *types.RoomEvent

	statsCron string
	logger    hclog.Logger

	mu sync.Mutex
}

func NewCoordinator(registry *room.Registry, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:       registry,
		transport:      transport,
		gracePeriod:    DefaultGracePeriod,
		eventQueueSize: defaultEventQueueSize,
		afterFunc: func(d time.Duration, f func()) room.Stopper {
			return time.AfterFunc(d, f)
		},
		newName: func() string {
			return goname.New(goname.FantasyMap).FirstLast()
		},
		logger: globals.AppLogger.Named("session"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.persister != nil {
		c.events = make(chan *types.RoomEvent, c.eventQueueSize)
	}
	return c
}

// Registry returns the registry the coordinator works on.
func (c *Coordinator) Registry() *room.Registry {
	return c.registry
}

// displayName trims name and makes one up if nothing is left.
func (c *Coordinator) displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.newName()
	}
	return name
}

// CreateRoom creates the room, or reconnects the host if the code is already in use. The
// requester always gets a successful roomCreated.
func (c *Coordinator) CreateRoom(connectionID string, msg types.CreateRoomMessage) {
	code := msg.RoomCode
	if strings.TrimSpace(code) == "" {
		c.logger.Warn("ignoring createRoom without room code", "connection", connectionID)
		return
	}
	name := c.displayName(msg.HostName)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.transport.Join(connectionID, code)
	res := c.registry.Create(code, name, connectionID)
	member := res.Member
	logger := c.logger.With("room", code, "name", name, "connection", connectionID)
	switch res.Outcome {
	case room.CreatedNew:
		logger.Info("room created")
		c.record(types.EventKindRoomCreated, res.Room, member)

	case room.HostRejoined:
		if res.CanceledGrace {
			logger.Info("host reconnected within grace period, room deletion canceled")
		} else {
			logger.Info("host reconnected")
		}
		c.record(types.EventKindHostRejoined, res.Room, member)

	case room.GuestUpserted:
		// name-based identity: a different name can not claim the host slot
		logger.Warn("createRoom for a room hosted under another name, joining as player", "host", res.Room.HostName)
	}

	c.send(connectionID, types.WireMessageTypeRoomCreated, types.RoomCreatedMessage{
		Success:    true,
		RoomCode:   code,
		PlayerName: name,
	})

	if res.Outcome == room.GuestUpserted {
		c.sendToGroup(code, types.WireMessageTypePlayerJoined, types.PlayerChangedMessage{
			PlayerId:   connectionID,
			PlayerName: name,
			Players:    res.Room.Members,
		}, connectionID)
		c.recordJoin(res.Rejoined, res.Room, member)
	}
}

// JoinRoom adds the player to an existing room, or reconnects a player with the same name.
func (c *Coordinator) JoinRoom(connectionID string, msg types.JoinRoomMessage) {
	code := msg.RoomCode
	name := c.displayName(msg.PlayerName)

	c.mu.Lock()
	defer c.mu.Unlock()

	rm, rejoined, err := c.registry.UpsertMember(code, name, connectionID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.logger.Info("join for unknown room", "room", code, "name", name, "connection", connectionID)
		} else {
			c.logger.Error("could not join room", "room", code, "error", err)
		}
		c.send(connectionID, types.WireMessageTypeJoinError, types.JoinErrorMessage{Message: roomNotFoundMessage})
		return
	}
	c.transport.Join(connectionID, code)

	if rejoined {
		c.logger.Info("player reconnected", "room", code, "name", name, "connection", connectionID)
	} else {
		c.logger.Info("player joined", "room", code, "name", name, "connection", connectionID, "players", len(rm.Members))
	}

	c.send(connectionID, types.WireMessageTypeJoinedRoom, types.JoinedRoomMessage{
		Success:    true,
		RoomCode:   code,
		PlayerName: name,
		Players:    rm.Members,
	})
	c.sendToGroup(code, types.WireMessageTypePlayerJoined, types.PlayerChangedMessage{
		PlayerId:   connectionID,
		PlayerName: name,
		Players:    rm.Members,
	}, connectionID)
	c.recordJoin(rejoined, rm, types.Member{ConnectionID: connectionID, Name: name})
}

func (c *Coordinator) recordJoin(rejoined bool, rm types.Room, member types.Member) {
	if rejoined {
		c.record(types.EventKindPlayerRejoined, rm, member)
	} else {
		c.record(types.EventKindPlayerJoined, rm, member)
	}
}

// Disconnect removes the connection from every room it is a member of. A departing host starts
// the room's grace period, a departing player is announced to the rest of the room.
func (c *Coordinator) Disconnect(connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, code := range c.registry.RoomsOf(connectionID) {
		for {
			removal, ok := c.registry.RemoveMember(code, connectionID)
			if !ok {
				break
			}
			if removal.WasHost {
				c.startGrace(removal)
				continue
			}
			c.logger.Info("player left", "room", code, "name", removal.Member.Name, "connection", connectionID)
			c.sendToGroup(code, types.WireMessageTypePlayerLeft, types.PlayerChangedMessage{
				PlayerId:   connectionID,
				PlayerName: removal.Member.Name,
				Players:    removal.Room.Members,
			}, connectionID)
			c.record(types.EventKindPlayerLeft, removal.Room, removal.Member)
			if c.registry.State(code) == types.RoomStateDeleted {
				c.transport.Disband(code)
				c.record(types.EventKindRoomDeleted, removal.Room, types.Member{})
			}
		}
	}
}

// startGrace arms the deletion timer of a room whose host just left. Must be called with mu held.
func (c *Coordinator) startGrace(removal room.Removal) {
	p := removal.Pending
	timer := c.afterFunc(c.gracePeriod, func() {
		c.expire(p)
	})
	if !c.registry.ArmGrace(p, timer) {
		return
	}
	c.logger.Info("host disconnected, grace period started", "room", p.Code, "name", removal.Member.Name, "grace_period", c.gracePeriod)
	c.record(types.EventKindHostLeft, removal.Room, removal.Member)
}

// expire runs when a grace period ends. A pending deletion that was canceled in the meantime is
// rejected by the registry, so a late timer never deletes a rejoined room.
func (c *Coordinator) expire(p *room.PendingDeletion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.registry.Expire(p)
	if !ok {
		c.logger.Debug("stale grace timer ignored", "room", p.Code)
		return
	}
	c.sendToGroup(p.Code, types.WireMessageTypeHostDisconnected, types.HostDisconnectedMessage{}, "")
	c.transport.Disband(p.Code)
	c.logger.Info("room deleted, host did not reconnect", "room", p.Code)
	c.record(types.EventKindRoomDeleted, last, types.Member{Name: p.HostName})
}

func (c *Coordinator) send(connectionID, event string, payload interface{}) {
	frame, err := types.NewFrame(event, payload)
	if err != nil {
		c.logger.Error("could not marshal frame", "event", event, "error", err)
		return
	}
	if !c.transport.Send(connectionID, frame) {
		c.logger.Debug("frame dropped", "event", event, "connection", connectionID)
	}
}

// sendToGroup sends to every connection in the room's delivery group except the given one.
func (c *Coordinator) sendToGroup(code, event string, payload interface{}, except string) {
	frame, err := types.NewFrame(event, payload)
	if err != nil {
		c.logger.Error("could not marshal frame", "event", event, "error", err)
		return
	}
	for _, id := range c.transport.Members(code) {
		if id == except {
			continue
		}
		if !c.transport.Send(id, frame) {
			c.logger.Debug("frame dropped", "event", event, "connection", id)
		}
	}
}
