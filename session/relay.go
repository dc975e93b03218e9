package session

import (
	"github.com/tcriess/lightspeed-relay/filter"
	"github.com/tcriess/lightspeed-relay/types"
)

// Broadcast relays msg.Data as gameData to the room's delivery group, skipping the sender, every
// id in msg.ExcludeIds and, if msg.Filter is set, every recipient the filter rejects.
// The sender's membership in the room is not checked.
func (c *Coordinator) Broadcast(connectionID string, msg types.BroadcastMessage) {
	prog, err := c.filters.Compile(msg.Filter)
	if err != nil {
		c.logger.Warn("dropping broadcast with invalid filter", "room", msg.RoomCode, "connection", connectionID, "error", err)
		return
	}
	frame, err := types.NewFrame(types.WireMessageTypeGameData, types.GameDataMessage{Data: msg.Data})
	if err != nil {
		c.logger.Error("could not marshal game data", "room", msg.RoomCode, "error", err)
		return
	}

	exclude := make(map[string]struct{}, len(msg.ExcludeIds)+1)
	exclude[connectionID] = struct{}{}
	for _, id := range msg.ExcludeIds {
		exclude[id] = struct{}{}
	}

	var rm types.Room
	if prog != nil {
		rm, _ = c.registry.Get(msg.RoomCode)
	}
	delivered := 0
	for _, id := range c.transport.Members(msg.RoomCode) {
		if _, ok := exclude[id]; ok {
			continue
		}
		if prog != nil && !filter.Match(prog, filterEnv(msg.RoomCode, rm, connectionID, id)) {
			continue
		}
		if c.transport.Send(id, frame) {
			delivered++
		}
	}
	c.logger.Trace("broadcast", "room", msg.RoomCode, "connection", connectionID, "delivered", delivered)
}

// SendToPlayer relays msg.Data as gameData to a single connection, silently dropping it if the
// connection is gone.
func (c *Coordinator) SendToPlayer(connectionID string, msg types.SendToPlayerMessage) {
	frame, err := types.NewFrame(types.WireMessageTypeGameData, types.GameDataMessage{Data: msg.Data})
	if err != nil {
		c.logger.Error("could not marshal game data", "error", err)
		return
	}
	if !c.transport.Send(msg.PlayerId, frame) {
		c.logger.Debug("sendToPlayer target not connected", "connection", connectionID, "target", msg.PlayerId)
	}
}

func filterEnv(code string, rm types.Room, senderID, recipientID string) filter.Env {
	return filter.Env{
		RoomCode:    code,
		MemberCount: len(rm.Members),
		Recipient:   filterMember(rm, recipientID),
		Sender:      filterMember(rm, senderID),
	}
}

func filterMember(rm types.Room, connectionID string) filter.Member {
	m := filter.Member{Id: connectionID, Host: rm.IsHost(connectionID)}
	if i := rm.MemberByConnection(connectionID); i >= 0 {
		m.Name = rm.Members[i].Name
	}
	return m
}
