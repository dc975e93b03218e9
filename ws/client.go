package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/lightspeed-relay/types"
)

const sendChannelSize = 256

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// Id is the connection id, it is what other players see as playerId.
	Id string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub on unregister.
	Send chan []byte

	registered chan struct{}
	logger     hclog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.New().String()
	return &Client{
		Id:         id,
		hub:        hub,
		conn:       conn,
		Send:       make(chan []byte, sendChannelSize),
		registered: make(chan struct{}),
		logger:     hub.logger.With("connection", id),
	}
}

// ReadLoop pumps messages from the websocket connection to the handler until the connection fails.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop(handler EventHandler) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("ws closed unexpectedly", "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			c.logger.Warn("could not unmarshal ws message", "error", err)
			continue
		}
		c.dispatch(handler, message)
	}
}

// dispatch decodes and hands a single event to the handler. A panic in the handler is logged and
// the connection keeps going.
func (c *Client) dispatch(handler EventHandler, message types.WebsocketMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling event", "event", message.Event, "panic", r)
		}
	}()
	if handler == nil {
		return
	}
	switch message.Event {
	case types.MessageTypeCreateRoom:
		msg := types.CreateRoomMessage{}
		if err := decodeData(message.Data, &msg); err != nil {
			c.logger.Warn("could not decode createRoom", "error", err)
			return
		}
		handler.CreateRoom(c.Id, msg)

	case types.MessageTypeJoinRoom:
		msg := types.JoinRoomMessage{}
		if err := decodeData(message.Data, &msg); err != nil {
			c.logger.Warn("could not decode joinRoom", "error", err)
			return
		}
		handler.JoinRoom(c.Id, msg)

	case types.MessageTypeBroadcast:
		msg := types.BroadcastMessage{}
		if err := decodeData(message.Data, &msg); err != nil {
			c.logger.Warn("could not decode broadcast", "error", err)
			return
		}
		msg.Data = payloadData(message.Data)
		handler.Broadcast(c.Id, msg)

	case types.MessageTypeSendToPlayer:
		msg := types.SendToPlayerMessage{}
		if err := decodeData(message.Data, &msg); err != nil {
			c.logger.Warn("could not decode sendToPlayer", "error", err)
			return
		}
		msg.Data = payloadData(message.Data)
		handler.SendToPlayer(c.Id, msg)

	default:
		c.logger.Debug("ignoring unknown event", "event", message.Event)
	}
}

// decodeData weakly decodes the event data into v, so "roomCode": 1234 still yields "1234".
func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	dataMap := make(map[string]interface{})
	if err := json.Unmarshal(data, &dataMap); err != nil {
		return fmt.Errorf("could not unmarshal event data: %w", err)
	}
	if err := mapstructure.WeakDecode(dataMap, v); err != nil {
		return fmt.Errorf("could not decode event data: %w", err)
	}
	return nil
}

// payloadData extracts the opaque "data" member of a relay event untouched.
func payloadData(data json.RawMessage) json.RawMessage {
	payload := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload.Data
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("could not send ping message, exiting write loop", "error", err)
				return
			}
		}
	}
}
