package connection

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// socket is the logical connection object. It survives transport drops and
// is re-opened in place; only Disconnect discards it.
type socket struct {
	id       string
	identity types.Identity

	// guarded by Manager.mu
	link *link

	closeOnce sync.Once
	closed    chan struct{}
}

func newSocket(id string, identity types.Identity) *socket {
	return &socket{id: id, identity: identity, closed: make(chan struct{})}
}

func (s *socket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// close must be called without Manager.mu held. Frames already queued on
// l are written first, waiting at most flush.
func (s *socket) close(l *link, flush time.Duration) {
	s.closeOnce.Do(func() { close(s.closed) })
	if l != nil {
		l.shutdown(flush)
	}
}

// link is one physical transport connection and its write queue.
type link struct {
	conn types.Conn
	send chan types.Frame

	closeOnce sync.Once
	done      chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	flushed  chan struct{}
}

func newLink(conn types.Conn, buffer int) *link {
	return &link{
		conn:    conn,
		send:    make(chan types.Frame, buffer),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
}

func (l *link) alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *link) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *link) enqueue(f types.Frame) error {
	if !l.alive() || l.stopping() {
		return ErrNotConnected
	}
	select {
	case l.send <- f:
		return nil
	case <-l.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// readPump reads frames from the transport and hands them to the manager
// in arrival order. It returns when the transport fails or is closed.
func (l *link) readPump(handle func(types.Frame)) error {
	for {
		var f types.Frame
		if err := l.conn.ReadJSON(&f); err != nil {
			return err
		}
		handle(f)
	}
}

// writePump writes queued frames to the transport. After shutdown it
// writes whatever is still queued and returns.
func (l *link) writePump(onErr func(error)) {
	defer close(l.flushed)
	for {
		select {
		case f := <-l.send:
			if err := l.conn.WriteJSON(f); err != nil {
				onErr(err)
				l.close()
				return
			}
		case <-l.stop:
			l.drain(onErr)
			return
		case <-l.done:
			return
		}
	}
}

func (l *link) drain(onErr func(error)) {
	for {
		select {
		case f := <-l.send:
			if err := l.conn.WriteJSON(f); err != nil {
				onErr(err)
				return
			}
		default:
			return
		}
	}
}

// shutdown stops accepting frames, lets writePump flush the queue for up
// to timeout and then closes the transport.
func (l *link) shutdown(timeout time.Duration) {
	l.stopOnce.Do(func() { close(l.stop) })
	t := time.NewTimer(timeout)
	select {
	case <-l.flushed:
	case <-t.C:
	}
	t.Stop()
	l.close()
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}
