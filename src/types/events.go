package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind is the name of an event on the wire.
type EventKind string

// Outbound events.
const (
	EventJoinRoom      EventKind = "join_room"
	EventLeaveRoom     EventKind = "leave_room"
	EventSendMessage   EventKind = "send_message"
	EventTyping        EventKind = "typing"
	EventStopTyping    EventKind = "stop_typing"
	EventDeleteMessage EventKind = "delete_message"
)

// Inbound events.
const (
	EventReceiveMessage EventKind = "receive_message"
	EventUserJoined     EventKind = "user_joined"
	EventUserLeft       EventKind = "user_left"
	EventActiveUsers    EventKind = "active_users"
	EventUserTyping     EventKind = "user_typing"
	EventUserStopTyping EventKind = "user_stop_typing"
	EventMessageDeleted EventKind = "message_deleted"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotOutbound      = errors.New("event is not an outbound event")
)

var outbound = map[EventKind]bool{
	EventJoinRoom:      true,
	EventLeaveRoom:     true,
	EventSendMessage:   true,
	EventTyping:        true,
	EventStopTyping:    true,
	EventDeleteMessage: true,
}

// IsOutbound reports whether k may be emitted by a client.
func (k EventKind) IsOutbound() bool { return outbound[k] }

// Outbound payloads.

type JoinRoomPayload struct {
	Department string `json:"department"`
	Semester   int    `json:"semester"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

type LeaveRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type SendMessagePayload struct {
	Department string `json:"department"`
	Semester   int    `json:"semester"`
	Message    string `json:"message"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserEmail  string `json:"userEmail"`
	ReplyTo    string `json:"replyTo,omitempty"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type StopTypingPayload struct {
	RoomID string `json:"roomId"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// NewFrame encodes an outbound event.
func NewFrame(kind EventKind, payload any) (Frame, error) {
	if !kind.IsOutbound() {
		return Frame{}, fmt.Errorf("%w: %s", ErrNotOutbound, kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Frame{Event: string(kind), Data: data}, nil
}

// Event is an inbound event. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	isEvent()
}

// MessageReceived carries a new message pushed by the server.
type MessageReceived struct {
	Message Message
}

// UserJoined carries the room's active count after a join.
type UserJoined struct {
	ActiveCount int `json:"activeCount"`
}

// UserLeft carries the room's active count after a leave.
type UserLeft struct {
	ActiveCount int `json:"activeCount"`
}

// ActiveUsers carries a full presence count.
type ActiveUsers struct {
	Count int `json:"count"`
}

// UserTyping reports a remote user typing.
type UserTyping struct {
	UserName string `json:"userName"`
	RoomID   string `json:"roomId,omitempty"`
}

// UserStopTyping reports that the remote typist stopped.
type UserStopTyping struct {
	RoomID string `json:"roomId,omitempty"`
}

// MessageDeleted carries the tombstoned replacement for a message.
type MessageDeleted struct {
	MessageID      string  `json:"messageId"`
	DeletedMessage Message `json:"deletedMessage"`
}

func (MessageReceived) Kind() EventKind { return EventReceiveMessage }
func (UserJoined) Kind() EventKind      { return EventUserJoined }
func (UserLeft) Kind() EventKind        { return EventUserLeft }
func (ActiveUsers) Kind() EventKind     { return EventActiveUsers }
func (UserTyping) Kind() EventKind      { return EventUserTyping }
func (UserStopTyping) Kind() EventKind  { return EventUserStopTyping }
func (MessageDeleted) Kind() EventKind  { return EventMessageDeleted }

func (MessageReceived) isEvent() {}
func (UserJoined) isEvent()      {}
func (UserLeft) isEvent()        {}
func (ActiveUsers) isEvent()     {}
func (UserTyping) isEvent()      {}
func (UserStopTyping) isEvent()  {}
func (MessageDeleted) isEvent()  {}

// DecodeEvent validates an inbound frame and returns its typed event.
func DecodeEvent(f Frame) (Event, error) {
	kind := EventKind(f.Event)
	switch kind {
	case EventReceiveMessage:
		var m Message
		if err := decodeData(f, &m); err != nil {
			return nil, err
		}
		if m.ID == "" || m.Text == "" {
			return nil, fmt.Errorf("%w: %s without id or body", ErrMalformedPayload, kind)
		}
		return MessageReceived{Message: m}, nil

	case EventUserJoined:
		var e UserJoined
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		if e.ActiveCount < 0 {
			return nil, fmt.Errorf("%w: negative count %d", ErrMalformedPayload, e.ActiveCount)
		}
		return e, nil

	case EventUserLeft:
		var e UserLeft
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		if e.ActiveCount < 0 {
			return nil, fmt.Errorf("%w: negative count %d", ErrMalformedPayload, e.ActiveCount)
		}
		return e, nil

	case EventActiveUsers:
		var e ActiveUsers
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		if e.Count < 0 {
			return nil, fmt.Errorf("%w: negative count %d", ErrMalformedPayload, e.Count)
		}
		return e, nil

	case EventUserTyping:
		var e UserTyping
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		if e.UserName == "" {
			return nil, fmt.Errorf("%w: %s without userName", ErrMalformedPayload, kind)
		}
		return e, nil

	case EventUserStopTyping:
		var e UserStopTyping
		if len(f.Data) > 0 {
			if err := decodeData(f, &e); err != nil {
				return nil, err
			}
		}
		return e, nil

	case EventMessageDeleted:
		var e MessageDeleted
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		if e.MessageID == "" {
			return nil, fmt.Errorf("%w: %s without messageId", ErrMalformedPayload, kind)
		}
		if e.DeletedMessage.ID == "" {
			e.DeletedMessage.ID = e.MessageID
		}
		if e.DeletedMessage.ID != e.MessageID {
			return nil, fmt.Errorf("%w: deleted message id %q does not match %q",
				ErrMalformedPayload, e.DeletedMessage.ID, e.MessageID)
		}
		if !e.DeletedMessage.IsDeleted || e.DeletedMessage.Text == "" {
			e.DeletedMessage = e.DeletedMessage.Tombstone()
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}

func decodeData(f Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, f.Event, err)
	}
	return nil
}
