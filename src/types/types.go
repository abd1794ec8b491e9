package types

import "encoding/json"

// Frame is a single event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Identity is the user a connection is opened on behalf of.
type Identity struct {
	UserID   string
	UserName string
}

// IsZero reports whether no identity has been set.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.UserName == ""
}

// ConnectionState is the lifecycle state of the shared connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
