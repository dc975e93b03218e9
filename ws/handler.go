package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-relay/room"
	"github.com/tcriess/lightspeed-relay/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomInfo is the read-only view of a room served by the introspection endpoints.
type RoomInfo struct {
	Code      string          `json:"code"`
	State     types.RoomState `json:"state"`
	Host      string          `json:"host"`
	Members   int             `json:"members"`
	Players   []types.Member  `json:"players,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRouter sets up the websocket endpoint and the introspection endpoints.
func NewRouter(hub *Hub, registry *room.Registry) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.ServeWs).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := registry.Stats()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"connections": hub.NoClients(),
			"rooms":       stats.Rooms,
			"grace":       stats.Grace,
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		rooms := registry.List()
		infos := make([]RoomInfo, 0, len(rooms))
		for _, rm := range rooms {
			infos = append(infos, roomInfo(registry, rm, false))
		}
		writeJSON(w, http.StatusOK, infos)
	}).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{code}", func(w http.ResponseWriter, r *http.Request) {
		rm, ok := registry.Get(mux.Vars(r)["code"])
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": room.ErrRoomNotFound.Error()})
			return
		}
		writeJSON(w, http.StatusOK, roomInfo(registry, rm, true))
	}).Methods(http.MethodGet)
	return router
}

func roomInfo(registry *room.Registry, rm types.Room, withPlayers bool) RoomInfo {
	info := RoomInfo{
		Code:      rm.Code,
		State:     registry.State(rm.Code),
		Host:      rm.HostName,
		Members:   len(rm.Members),
		CreatedAt: rm.CreatedAt,
	}
	if withPlayers {
		info.Players = rm.Members
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeWs upgrades the request and runs the connection until it closes. The handler sees the
// disconnect only after the connection has left every delivery group.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade error", "error", err)
		return
	}

	c := NewClient(h, conn)
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	defer h.unregister(c)
	c.logger.Info("client connected", "remote", r.RemoteAddr)

	go c.WriteLoop()

	if frame, err := types.NewFrame(types.WireMessageTypeConnected, types.ConnectedMessage{PlayerId: c.Id}); err == nil {
		h.Send(c.Id, frame)
	}
	c.ReadLoop(h.handler)
	c.logger.Info("client disconnected")
}
