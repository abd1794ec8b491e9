package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/types"
)

func (h *Hub) handleFrame(c *Client, f types.Frame) {
	var err error
	switch types.EventKind(f.Event) {
	case types.EventJoinRoom:
		err = h.handleJoin(c, f)
	case types.EventLeaveRoom:
		err = h.handleLeave(c, f)
	case types.EventSendMessage:
		err = h.handleSend(c, f)
	case types.EventTyping:
		var p types.TypingPayload
		if err = json.Unmarshal(f.Data, &p); err == nil {
			h.broadcast(p.RoomID, types.EventUserTyping, types.UserTyping{UserName: p.UserName, RoomID: p.RoomID}, c.ID)
		}
	case types.EventStopTyping:
		var p types.StopTypingPayload
		if err = json.Unmarshal(f.Data, &p); err == nil {
			h.broadcast(p.RoomID, types.EventUserStopTyping, types.UserStopTyping{RoomID: p.RoomID}, c.ID)
		}
	case types.EventDeleteMessage:
		err = h.handleDelete(f)
	default:
		err = fmt.Errorf("unknown event %q", f.Event)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.ID).Str("event", f.Event).Msg("frame rejected")
	}
}

func (h *Hub) handleJoin(c *Client, f types.Frame) error {
	var p types.JoinRoomPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return err
	}
	room := types.NewRoomIdentity(p.Department, p.Semester)
	if err := room.Validate(); err != nil {
		return err
	}
	key := room.Key()

	h.mu.Lock()
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[string]bool)
	}
	h.rooms[key][c.ID] = true
	count := len(h.rooms[key])
	h.mu.Unlock()
	c.addRoom(key)

	h.logger.Debug().Str("client_id", c.ID).Str("room", key).Int("active", count).Msg("joined")
	h.broadcast(key, types.EventUserJoined, types.UserJoined{ActiveCount: count}, "")
	h.send(c, types.EventActiveUsers, types.ActiveUsers{Count: count})
	return nil
}

func (h *Hub) handleLeave(c *Client, f types.Frame) error {
	var p types.LeaveRoomPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return err
	}
	h.mu.Lock()
	subs, ok := h.rooms[p.RoomID]
	if !ok || !subs[c.ID] {
		h.mu.Unlock()
		return nil
	}
	delete(subs, c.ID)
	count := len(subs)
	if count == 0 {
		delete(h.rooms, p.RoomID)
	}
	h.mu.Unlock()
	c.removeRoom(p.RoomID)

	h.broadcast(p.RoomID, types.EventUserLeft, types.UserLeft{ActiveCount: count}, "")
	return nil
}

func (h *Hub) handleSend(c *Client, f types.Frame) error {
	var p types.SendMessagePayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return err
	}
	if p.Message == "" {
		return fmt.Errorf("empty message")
	}
	key := types.NewRoomIdentity(p.Department, p.Semester).Key()
	msg := types.Message{
		ID:          uuid.New().String(),
		Text:        p.Message,
		AuthorID:    p.UserID,
		AuthorName:  p.UserName,
		AuthorEmail: p.UserEmail,
		CreatedAt:   time.Now().UTC(),
		ReplyToID:   p.ReplyTo,
		RoomID:      key,
	}

	h.mu.Lock()
	h.messages[msg.ID] = msg
	h.history[key] = append(h.history[key], msg.ID)
	h.mu.Unlock()

	h.broadcast(key, types.EventReceiveMessage, msg, "")
	return nil
}

func (h *Hub) handleDelete(f types.Frame) error {
	var p types.DeleteMessagePayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return err
	}
	h.mu.Lock()
	msg, ok := h.messages[p.MessageID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("message %s not found", p.MessageID)
	}
	msg = msg.Tombstone()
	h.messages[p.MessageID] = msg
	h.mu.Unlock()

	h.broadcast(msg.RoomID, types.EventMessageDeleted, types.MessageDeleted{
		MessageID:      msg.ID,
		DeletedMessage: msg,
	}, "")
	return nil
}

// broadcast sends an event to every member of room except the client
// with id except.
func (h *Hub) broadcast(room string, kind types.EventKind, payload any, except string) {
	f, err := encode(kind, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(kind)).Msg("encode failed")
		return
	}

	h.mu.RLock()
	subs := h.rooms[room]
	// Copy recipients to avoid holding the lock during sends.
	recipients := make([]*Client, 0, len(subs))
	for id := range subs {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		if !c.deliver(f) {
			h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		}
	}
}

func (h *Hub) send(c *Client, kind types.EventKind, payload any) {
	f, err := encode(kind, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(kind)).Msg("encode failed")
		return
	}
	if !c.deliver(f) {
		h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
	}
}

func encode(kind types.EventKind, payload any) (types.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.Frame{}, err
	}
	return types.Frame{Event: string(kind), Data: data}, nil
}
