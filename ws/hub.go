package ws

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-relay/globals"
	"github.com/tcriess/lightspeed-relay/types"
)

const (
	maxMessageSize = 64 * 1024
	pongWait       = 2 * time.Minute
	pingPeriod     = time.Minute
	writeWait      = 10 * time.Second
)

// EventHandler receives the decoded client events. Calls for one connection are never concurrent,
// and Disconnect is the last call made for a connection.
type EventHandler interface {
	CreateRoom(connectionID string, msg types.CreateRoomMessage)
	JoinRoom(connectionID string, msg types.JoinRoomMessage)
	Broadcast(connectionID string, msg types.BroadcastMessage)
	SendToPlayer(connectionID string, msg types.SendToPlayerMessage)
	Disconnect(connectionID string)
}

// Hub keeps track of the live connections and of the delivery group of every room.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// room code -> connection ids, in joining order
	groups map[string][]string

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	handler EventHandler
	logger  hclog.Logger

	// closed when Run returns
	done chan struct{}

	// mutex for manipulating the clients and groups
	sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string][]string),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     globals.AppLogger.Named("ws"),
		done:       make(chan struct{}),
	}
}

// SetHandler sets the receiver of client events. It has to be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Run is the main hub event loop handling register and unregister events. When ctx is done, all
// connections are closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client.Id] = client
			h.Unlock()
			close(client.registered)
			h.logger.Debug("client registered", "connection", client.Id)

		case client := <-h.Unregister:
			if !h.remove(client) {
				continue
			}
			h.logger.Debug("client unregistered", "connection", client.Id)
			if h.handler != nil {
				h.handler.Disconnect(client.Id)
			}

		case <-ctx.Done():
			h.RLock()
			for _, client := range h.clients {
				_ = client.conn.Close()
			}
			h.RUnlock()
			h.logger.Info("hub stopped")
			return
		}
	}
}

// remove drops the client and its group memberships and closes its send channel.
func (h *Hub) remove(client *Client) bool {
	h.Lock()
	defer h.Unlock()
	if h.clients[client.Id] != client {
		return false
	}
	delete(h.clients, client.Id)
	for code := range h.groups {
		h.leaveLocked(client.Id, code)
	}
	// Send only writes to the channel while holding the read lock
	close(client.Send)
	return true
}

// Join adds the connection to the delivery group of the room. Unknown connections are ignored.
func (h *Hub) Join(connectionID, roomCode string) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.clients[connectionID]; !ok {
		return
	}
	for _, id := range h.groups[roomCode] {
		if id == connectionID {
			return
		}
	}
	h.groups[roomCode] = append(h.groups[roomCode], connectionID)
}

func (h *Hub) leaveLocked(connectionID, roomCode string) {
	ids := h.groups[roomCode]
	for i, id := range ids {
		if id == connectionID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(h.groups, roomCode)
		return
	}
	h.groups[roomCode] = ids
}

// Disband removes the delivery group of the room.
func (h *Hub) Disband(roomCode string) {
	h.Lock()
	defer h.Unlock()
	delete(h.groups, roomCode)
}

// Members returns a copy of the delivery group of the room.
func (h *Hub) Members(roomCode string) []string {
	h.RLock()
	defer h.RUnlock()
	return append([]string(nil), h.groups[roomCode]...)
}

// Send queues frame for the connection without blocking. It returns false if the connection is
// unknown or its queue is full.
func (h *Hub) Send(connectionID string, frame []byte) bool {
	h.RLock()
	defer h.RUnlock()
	client, ok := h.clients[connectionID]
	if !ok {
		return false
	}
	select {
	case client.Send <- frame:
		return true
	default:
		h.logger.Warn("send queue full, dropping frame", "connection", connectionID)
		return false
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// NoGroups returns the number of delivery groups.
func (h *Hub) NoGroups() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.groups)
}

// register hands the client to Run and waits until it is registered. It returns false if the hub
// is not running anymore.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
	case <-h.done:
		return false
	}
	<-client.registered
	return true
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}
