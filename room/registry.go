// Package room holds the authoritative in-memory room table.
//
// The Registry owns every Room, Member and pending deletion. Callers only ever receive
// copies, so a snapshot taken before a concurrent reconnect can never be written back.
package room

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-relay/types"
)

// ErrRoomNotFound is returned for operations on an unknown room code.
var ErrRoomNotFound = errors.New("room not found")

// CreateOutcome tells which path Create took.
type CreateOutcome int

const (
	// CreatedNew means the code was unused and a fresh room was created.
	CreatedNew CreateOutcome = iota
	// HostRejoined means the original host (matched by name) reconnected.
	HostRejoined
	// GuestUpserted means the code was taken by a room hosted under another name, the
	// requester was merged into it like a joining player.
	GuestUpserted
)

func (o CreateOutcome) String() string {
	switch o {
	case CreatedNew:
		return "created"
	case HostRejoined:
		return "host_rejoined"
	case GuestUpserted:
		return "guest_upserted"
	}
	return "unknown"
}

// Stopper is the cancelable part of a scheduled deletion, *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// PendingDeletion remembers the absent host's slot while its grace period runs.
type PendingDeletion struct {
	Code      string
	HostName  string
	HostIndex int

	timer Stopper
}

func (p *PendingDeletion) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// CreateResult is returned by Create.
type CreateResult struct {
	Room          types.Room
	Member        types.Member
	Outcome       CreateOutcome
	Rejoined      bool // an existing member slot was reused
	CanceledGrace bool
}

// Removal describes a member removed by RemoveMember. Pending is set when the removed member
// was the host, its timer still has to be armed with ArmGrace.
type Removal struct {
	Room    types.Room
	Member  types.Member
	Index   int
	WasHost bool
	Pending *PendingDeletion
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Rooms       int
	Members     int
	Grace       int
	Connections int
}

// Registry maps room codes to rooms. All methods are safe for concurrent use.
type Registry struct {
	rooms   map[string]*types.Room
	pending map[string]*PendingDeletion
	// connection id -> set of room codes in which that connection is a member
	connections map[string]map[string]struct{}

	now func() time.Time

	sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]*types.Room),
		pending:     make(map[string]*PendingDeletion),
		connections: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// Get returns a copy of the room with the given code.
func (r *Registry) Get(code string) (types.Room, bool) {
	r.RLock()
	defer r.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return types.Room{}, false
	}
	return rm.Clone(), true
}

// List returns copies of all rooms ordered by code.
func (r *Registry) List() []types.Room {
	r.RLock()
	defer r.RUnlock()
	rooms := make([]types.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm.Clone())
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Code < rooms[j].Code })
	return rooms
}

// State returns the lifecycle state of the room.
func (r *Registry) State(code string) types.RoomState {
	r.RLock()
	defer r.RUnlock()
	if _, ok := r.rooms[code]; !ok {
		return types.RoomStateDeleted
	}
	if _, ok := r.pending[code]; ok {
		return types.RoomStateGrace
	}
	return types.RoomStateActive
}

// Create creates the room, or treats the request as the host reconnecting if the code is taken.
// It never fails.
func (r *Registry) Create(code, hostName, connectionID string) CreateResult {
	r.Lock()
	defer r.Unlock()

	member := types.Member{ConnectionID: connectionID, Name: hostName}
	rm, ok := r.rooms[code]
	if !ok {
		rm = &types.Room{
			Code:             code,
			HostName:         hostName,
			HostConnectionID: connectionID,
			Members:          []types.Member{member},
			CreatedAt:        r.now(),
		}
		r.rooms[code] = rm
		r.index(connectionID, code)
		return CreateResult{Room: rm.Clone(), Member: member, Outcome: CreatedNew}
	}

	if hostName != rm.HostName {
		rejoined := r.upsert(rm, hostName, connectionID)
		return CreateResult{Room: rm.Clone(), Member: member, Outcome: GuestUpserted, Rejoined: rejoined}
	}

	rejoined := true
	if i := rm.MemberByName(hostName); i >= 0 {
		previous := rm.Members[i].ConnectionID
		rm.Members[i].ConnectionID = connectionID
		r.unindexIfGone(rm, previous)
	} else {
		// the host was removed on disconnect, put it back where it was
		at := len(rm.Members)
		if p, ok := r.pending[code]; ok && p.HostName == hostName && p.HostIndex < at {
			at = p.HostIndex
		}
		rm.Members = append(rm.Members, types.Member{})
		copy(rm.Members[at+1:], rm.Members[at:])
		rm.Members[at] = member
		rejoined = false
	}
	rm.HostConnectionID = connectionID
	r.index(connectionID, code)
	canceled := r.cancelGrace(code)
	return CreateResult{
		Room:          rm.Clone(),
		Member:        member,
		Outcome:       HostRejoined,
		Rejoined:      rejoined,
		CanceledGrace: canceled,
	}
}

// UpsertMember merges a joining player by name: an existing member keeps its position and role
// and only gets the new connection id, otherwise the player is appended. rejoined reports which
// of the two happened.
func (r *Registry) UpsertMember(code, name, connectionID string) (room types.Room, rejoined bool, err error) {
	r.Lock()
	defer r.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return types.Room{}, false, ErrRoomNotFound
	}
	rejoined = r.upsert(rm, name, connectionID)
	return rm.Clone(), rejoined, nil
}

func (r *Registry) upsert(rm *types.Room, name, connectionID string) bool {
	if i := rm.MemberByName(name); i >= 0 {
		previous := rm.Members[i].ConnectionID
		rm.Members[i].ConnectionID = connectionID
		if rm.IsHost(previous) {
			rm.HostConnectionID = connectionID
		}
		r.index(connectionID, rm.Code)
		r.unindexIfGone(rm, previous)
		return true
	}
	rm.Members = append(rm.Members, types.Member{ConnectionID: connectionID, Name: name})
	r.index(connectionID, rm.Code)
	return false
}

// RemoveMember removes the member holding connectionID from the room. If it was the host, the
// host's slot is recorded as a pending deletion (returned in Removal.Pending) and the room enters
// its grace period.
func (r *Registry) RemoveMember(code, connectionID string) (Removal, bool) {
	r.Lock()
	defer r.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return Removal{}, false
	}
	i := rm.MemberByConnection(connectionID)
	if i < 0 {
		return Removal{}, false
	}
	member := rm.Members[i]
	rm.Members = append(rm.Members[:i:i], rm.Members[i+1:]...)
	r.unindexIfGone(rm, connectionID)

	removal := Removal{Member: member, Index: i}
	if rm.IsHost(connectionID) {
		rm.HostConnectionID = ""
		if previous, ok := r.pending[code]; ok {
			previous.stop()
		}
		p := &PendingDeletion{Code: code, HostName: member.Name, HostIndex: i}
		r.pending[code] = p
		removal.WasHost = true
		removal.Pending = p
	} else if len(rm.Members) == 0 && r.pending[code] == nil {
		// no host slot to wait for
		r.deleteLocked(code)
	}
	removal.Room = rm.Clone()
	return removal, true
}

// ArmGrace attaches the deletion timer to p. It returns false, and stops the timer, if p is no
// longer the room's pending deletion.
func (r *Registry) ArmGrace(p *PendingDeletion, timer Stopper) bool {
	r.Lock()
	defer r.Unlock()
	if r.pending[p.Code] != p {
		timer.Stop()
		return false
	}
	p.timer = timer
	return true
}

// CancelGrace stops and removes the room's pending deletion. Canceling twice is a no-op.
func (r *Registry) CancelGrace(code string) bool {
	r.Lock()
	defer r.Unlock()
	return r.cancelGrace(code)
}

func (r *Registry) cancelGrace(code string) bool {
	p, ok := r.pending[code]
	if !ok {
		return false
	}
	p.stop()
	delete(r.pending, code)
	return true
}

// InGrace reports whether the room has a pending deletion.
func (r *Registry) InGrace(code string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.pending[code]
	return ok
}

// Expire deletes the room if p is still its pending deletion and returns the last state of the
// room. A canceled or superseded p expires nothing.
func (r *Registry) Expire(p *PendingDeletion) (types.Room, bool) {
	r.Lock()
	defer r.Unlock()
	if r.pending[p.Code] != p {
		return types.Room{}, false
	}
	rm, ok := r.rooms[p.Code]
	if !ok {
		delete(r.pending, p.Code)
		return types.Room{}, false
	}
	last := rm.Clone()
	r.deleteLocked(p.Code)
	return last, true
}

// Delete removes the room together with its pending deletion.
func (r *Registry) Delete(code string) {
	r.Lock()
	defer r.Unlock()
	r.deleteLocked(code)
}

func (r *Registry) deleteLocked(code string) {
	rm, ok := r.rooms[code]
	if ok {
		for _, m := range rm.Members {
			r.unindex(m.ConnectionID, code)
		}
		delete(r.rooms, code)
	}
	r.cancelGrace(code)
}

// RoomsOf returns the codes of all rooms in which connectionID is a member.
func (r *Registry) RoomsOf(connectionID string) []string {
	r.RLock()
	defer r.RUnlock()
	codes := make([]string, 0, len(r.connections[connectionID]))
	for code := range r.connections[connectionID] {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Stats summarizes the registry.
func (r *Registry) Stats() Stats {
	r.RLock()
	defer r.RUnlock()
	stats := Stats{
		Rooms:       len(r.rooms),
		Grace:       len(r.pending),
		Connections: len(r.connections),
	}
	for _, rm := range r.rooms {
		stats.Members += len(rm.Members)
	}
	return stats
}

func (r *Registry) index(connectionID, code string) {
	if connectionID == "" {
		return
	}
	codes, ok := r.connections[connectionID]
	if !ok {
		codes = make(map[string]struct{})
		r.connections[connectionID] = codes
	}
	codes[code] = struct{}{}
}

func (r *Registry) unindex(connectionID, code string) {
	codes, ok := r.connections[connectionID]
	if !ok {
		return
	}
	delete(codes, code)
	if len(codes) == 0 {
		delete(r.connections, connectionID)
	}
}

// unindexIfGone drops the index entry unless the connection still holds another slot in the room.
func (r *Registry) unindexIfGone(rm *types.Room, connectionID string) {
	if rm.MemberByConnection(connectionID) < 0 {
		r.unindex(connectionID, rm.Code)
	}
}
