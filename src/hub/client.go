package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// Client wraps one server-side WebSocket connection.
type Client struct {
	ID       string
	UserID   string
	UserName string

	conn        types.Conn
	hub         *Hub
	Send        chan types.Frame
	connectedAt time.Time
	rooms       map[string]bool
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a client for a connection opened as identity.
func NewClient(id string, identity types.Identity, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		UserID:      identity.UserID,
		UserName:    identity.UserName,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Frame, 256),
		connectedAt: time.Now(),
		rooms:       make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// ClientInfo is metadata about a connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Info returns metadata about this client.
func (c *Client) Info() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for key := range c.rooms {
		rooms = append(rooms, key)
	}
	return ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		ConnectedAt: c.connectedAt,
		Rooms:       rooms,
	}
}

func (c *Client) addRoom(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[key] = true
}

func (c *Client) removeRoom(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, key)
}

// ReadPump reads frames from the WebSocket and routes them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var f types.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case c.hub.incoming <- inbound{client: c, frame: f}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes frames from the send channel to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case f := <-c.Send:
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// deliver queues f without blocking. Send is never closed, so a late
// broadcast cannot panic.
func (c *Client) deliver(f types.Frame) bool {
	select {
	case c.Send <- f:
		return true
	default:
		return false
	}
}
