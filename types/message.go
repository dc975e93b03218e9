package types

import "encoding/json"

// Inbound event names (client -> relay).
const (
	MessageTypeCreateRoom   = "createRoom"
	MessageTypeJoinRoom     = "joinRoom"
	MessageTypeBroadcast    = "broadcast"
	MessageTypeSendToPlayer = "sendToPlayer"
)

// Outbound event names (relay -> client).
const (
	WireMessageTypeConnected        = "connected"
	WireMessageTypeRoomCreated      = "roomCreated"
	WireMessageTypeJoinedRoom       = "joinedRoom"
	WireMessageTypeJoinError        = "joinError"
	WireMessageTypePlayerJoined     = "playerJoined"
	WireMessageTypePlayerLeft       = "playerLeft"
	WireMessageTypeHostDisconnected = "hostDisconnected"
	WireMessageTypeGameData         = "gameData"
)

// The different types of messages transferred from the client to here.

// CreateRoomMessage creates a room, or reconnects its host if the room already exists.
type CreateRoomMessage struct {
	RoomCode string `json:"roomCode" mapstructure:"roomCode"`
	HostName string `json:"hostName" mapstructure:"hostName"`
}

// JoinRoomMessage joins an existing room, or reconnects a player with the same name.
type JoinRoomMessage struct {
	RoomCode   string `json:"roomCode" mapstructure:"roomCode"`
	PlayerName string `json:"playerName" mapstructure:"playerName"`
}

// BroadcastMessage relays Data to the room. Filter is an optional expression evaluated per recipient.
type BroadcastMessage struct {
	RoomCode   string          `json:"roomCode" mapstructure:"roomCode"`
	Data       json.RawMessage `json:"data" mapstructure:"-"`
	ExcludeIds []string        `json:"excludeIds" mapstructure:"excludeIds"`
	Filter     string          `json:"filter" mapstructure:"filter"`
}

// SendToPlayerMessage relays Data to a single connection.
type SendToPlayerMessage struct {
	PlayerId string          `json:"playerId" mapstructure:"playerId"`
	Data     json.RawMessage `json:"data" mapstructure:"-"`
}

// The messages sent from here to the clients.

type ConnectedMessage struct {
	PlayerId string `json:"playerId"`
}

type RoomCreatedMessage struct {
	Success    bool   `json:"success"`
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type JoinedRoomMessage struct {
	Success    bool     `json:"success"`
	RoomCode   string   `json:"roomCode"`
	PlayerName string   `json:"playerName"`
	Players    []Member `json:"players"`
}

type JoinErrorMessage struct {
	Message string `json:"message"`
}

// PlayerChangedMessage is used for both playerJoined and playerLeft.
type PlayerChangedMessage struct {
	PlayerId   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Players    []Member `json:"players"`
}

type HostDisconnectedMessage struct{}

type GameDataMessage struct {
	Data json.RawMessage `json:"data"`
}
