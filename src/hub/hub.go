// Package hub is an in-process push server speaking the chat protocol.
// It keeps room membership and message history in memory and is used to
// exercise the client end to end over real WebSocket connections.
package hub

import (
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Hub manages connected clients and their room memberships.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]bool // room key -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound

	messages map[string]types.Message // message id -> message
	history  map[string][]string      // room key -> message ids in order

	onConnect []func(string)
	onDisconn []func(string)

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

type inbound struct {
	client *Client
	frame  types.Frame
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		messages:   make(map[string]types.Message),
		history:    make(map[string][]string),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleFrame(in.client, in.frame)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client registered")

	for _, cb := range h.onConnect {
		cb(c.ID)
	}
}

// removeClient drops c and announces the departure in every room it was in.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	var left []string
	for key, subs := range h.rooms {
		if !subs[c.ID] {
			continue
		}
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.rooms, key)
		}
		left = append(left, key)
	}
	h.mu.Unlock()

	c.Close()
	for _, key := range left {
		h.broadcast(key, types.EventUserLeft, types.UserLeft{ActiveCount: h.RoomCount(key)}, "")
	}
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for _, cb := range h.onDisconn {
		cb(c.ID)
	}
}
