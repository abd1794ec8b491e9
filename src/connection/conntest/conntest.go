// Package conntest provides in-memory connections and dialers for tests.
package conntest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// ErrClosed is returned by reads on a closed Conn.
var ErrClosed = errors.New("connection closed")

// ErrDialRefused is returned by a Dialer told to fail.
var ErrDialRefused = errors.New("dial refused")

// Conn implements types.Conn without a real WebSocket.
type Conn struct {
	mu       sync.Mutex
	written  []types.Frame
	readCh   chan types.Frame
	closed   bool
	closedCh chan struct{}
}

// NewConn returns an open Conn.
func NewConn() *Conn {
	return &Conn{
		readCh:   make(chan types.Frame, 64),
		closedCh: make(chan struct{}),
	}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	f, ok := v.(types.Frame)
	if !ok {
		return fmt.Errorf("conntest: unexpected write of %T", v)
	}
	c.written = append(c.written, f)
	return nil
}

func (c *Conn) ReadJSON(v any) error {
	select {
	case f := <-c.readCh:
		ptr, ok := v.(*types.Frame)
		if !ok {
			return fmt.Errorf("conntest: unexpected read into %T", v)
		}
		*ptr = f
		return nil
	case <-c.closedCh:
		return ErrClosed
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Push delivers an inbound event as the server would.
func (c *Conn) Push(kind types.EventKind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	c.readCh <- types.Frame{Event: string(kind), Data: data}
}

// PushRaw delivers an arbitrary frame.
func (c *Conn) PushRaw(event string, data string) {
	c.readCh <- types.Frame{Event: event, Data: json.RawMessage(data)}
}

// Written returns a copy of every frame written so far.
func (c *Conn) Written() []types.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Frame, len(c.written))
	copy(out, c.written)
	return out
}

// WrittenOf returns the frames written for kind.
func (c *Conn) WrittenOf(kind types.EventKind) []types.Frame {
	var out []types.Frame
	for _, f := range c.Written() {
		if f.Event == string(kind) {
			out = append(out, f)
		}
	}
	return out
}

// Dialer hands out Conns and records every dial.
type Dialer struct {
	mu         sync.Mutex
	conns      []*Conn
	identities []types.Identity
	dials      int
	failNext   int
	failAlways bool
}

// NewDialer returns a Dialer that always succeeds.
func NewDialer() *Dialer { return &Dialer{} }

func (d *Dialer) Dial(_ context.Context, identity types.Identity) (types.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.identities = append(d.identities, identity)
	if d.failAlways {
		return nil, ErrDialRefused
	}
	if d.failNext > 0 {
		d.failNext--
		return nil, ErrDialRefused
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// FailNext makes the next n dials fail.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// FailAlways makes every dial fail until Recover.
func (d *Dialer) FailAlways() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAlways = true
}

// Recover undoes FailAlways and FailNext.
func (d *Dialer) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAlways = false
	d.failNext = 0
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns the number of successful dials.
func (d *Dialer) Conns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Last returns the most recent successful Conn, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Identities returns the identity passed to each dial.
func (d *Dialer) Identities() []types.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Identity(nil), d.identities...)
}
