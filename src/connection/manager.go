package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Dialer opens a physical transport connection for an identity.
type Dialer interface {
	Dial(ctx context.Context, identity types.Identity) (types.Conn, error)
}

// Policy controls dialing and automatic reconnection.
type Policy struct {
	Attempts    int           // reconnection attempts after a failure
	Delay       time.Duration // fixed delay between attempts
	DialTimeout time.Duration
	SendBuffer  int
}

// flushTimeout bounds how long Disconnect waits for queued frames.
const flushTimeout = time.Second

// DefaultPolicy returns 5 attempts at 1 second spacing.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:    5,
		Delay:       time.Second,
		DialTimeout: 10 * time.Second,
		SendBuffer:  256,
	}
}

// Manager owns the one physical connection shared by every consumer
// surface. Construct one per process and pass it to each consumer.
type Manager struct {
	dialer Dialer
	policy Policy
	logger zerolog.Logger

	mu       sync.RWMutex
	state    types.ConnectionState
	sock     *socket
	handlers map[types.EventKind][]*Listener

	hooks    map[uint64]func(types.ConnectionState)
	nextHook uint64

	registry *ListenerRegistry
	dials    atomic.Int64
	epoch    atomic.Uint64
}

// New creates a Manager. Nothing is dialed until Connect.
func New(d Dialer, policy Policy, logger zerolog.Logger) *Manager {
	if policy.SendBuffer <= 0 {
		policy.SendBuffer = DefaultPolicy().SendBuffer
	}
	logger = logger.With().Str("component", "connection").Logger()
	m := &Manager{
		dialer:   d,
		policy:   policy,
		logger:   logger,
		handlers: make(map[types.EventKind][]*Listener),
		hooks:    make(map[uint64]func(types.ConnectionState)),
	}
	m.registry = NewListenerRegistry(m, logger)
	return m
}

// Listeners returns the registry every consumer must attach handlers
// through.
func (m *Manager) Listeners() *ListenerRegistry { return m.registry }

// Connect opens the shared connection if it is not already open or
// opening. A closed connection object is re-opened in place. Connect never
// fails; poll IsConnected.
func (m *Manager) Connect(userID, userName string) {
	identity := types.Identity{UserID: userID, UserName: userName}

	m.mu.Lock()
	if m.sock == nil {
		m.sock = newSocket(uuid.New().String(), identity)
		m.logger.Info().Str("socket_id", m.sock.id).Str("user_id", userID).Msg("connection created")
	} else if m.sock.identity != identity {
		m.logger.Warn().
			Str("user_id", userID).
			Str("connected_as", m.sock.identity.UserID).
			Msg("connect with a different identity ignored; disconnect first")
	}

	switch {
	case m.state == types.StateConnecting:
		m.mu.Unlock()
		return
	case m.state == types.StateConnected && m.sock.link != nil && m.sock.link.alive():
		m.mu.Unlock()
		return
	}

	sock := m.sock
	stale := sock.link
	sock.link = nil
	m.state = types.StateConnecting
	m.mu.Unlock()

	if stale != nil {
		stale.close()
	}
	m.notify(types.StateConnecting)
	go m.open(sock, true)
}

// IsConnected reports true only when the manager believes it is connected
// and the transport has not been closed underneath it.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == types.StateConnected &&
		m.sock != nil && m.sock.link != nil && m.sock.link.alive()
}

// State returns the current connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the identity of the current connection object.
func (m *Manager) Identity() (types.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sock == nil {
		return types.Identity{}, false
	}
	return m.sock.identity, true
}

// Dials returns how many physical dials have been attempted.
func (m *Manager) Dials() int { return int(m.dials.Load()) }

// Disconnect removes every listener, writes frames that are already
// queued, closes the connection and forgets its identity. The next
// Connect starts clean.
func (m *Manager) Disconnect() {
	m.registry.RemoveAll()

	m.mu.Lock()
	sock := m.sock
	var l *link
	if sock != nil {
		l = sock.link
		sock.link = nil
	}
	m.sock = nil
	m.state = types.StateDisconnected
	m.mu.Unlock()

	if sock != nil {
		sock.close(l, flushTimeout)
		m.logger.Info().Str("socket_id", sock.id).Msg("disconnected")
		m.notify(types.StateDisconnected)
	}
}

// Emit queues an outbound event. It fails with ErrNotConnected when no
// transport is open; delivery is not acknowledged.
func (m *Manager) Emit(kind types.EventKind, payload any) error {
	f, err := types.NewFrame(kind, payload)
	if err != nil {
		return err
	}
	m.mu.RLock()
	var l *link
	if m.state == types.StateConnected && m.sock != nil {
		l = m.sock.link
	}
	m.mu.RUnlock()

	if l == nil {
		return ErrNotConnected
	}
	if err := l.enqueue(f); err != nil {
		m.logger.Warn().Err(err).Str("event", string(kind)).Msg("emit failed")
		return err
	}
	return nil
}

// open dials until connected or the policy is exhausted. When immediate
// is false the first dial waits one delay, as after a dropped connection.
func (m *Manager) open(sock *socket, immediate bool) {
	start := 1
	if immediate {
		start = 0
	}
	for attempt := start; attempt <= m.policy.Attempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(m.policy.Delay)
			select {
			case <-t.C:
			case <-sock.closed:
				t.Stop()
				return
			}
		}
		if sock.isClosed() {
			return
		}

		conn, err := m.dial(sock.identity)
		if err == nil {
			if !m.attach(sock, conn) {
				_ = conn.Close()
			}
			return
		}
		m.logger.Warn().Err(err).
			Str("socket_id", sock.id).
			Int("attempt", attempt).
			Int("max_attempts", m.policy.Attempts).
			Msg("connect failed")
	}

	m.mu.Lock()
	current := m.sock == sock
	if current {
		m.state = types.StateDisconnected
	}
	m.mu.Unlock()
	if current {
		m.logger.Error().Str("socket_id", sock.id).Int("attempts", m.policy.Attempts).Msg("reconnection attempts exhausted")
		m.notify(types.StateDisconnected)
	}
}

func (m *Manager) dial(identity types.Identity) (types.Conn, error) {
	m.dials.Add(1)
	ctx := context.Background()
	if m.policy.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.policy.DialTimeout)
		defer cancel()
	}
	return m.dialer.Dial(ctx, identity)
}

func (m *Manager) attach(sock *socket, conn types.Conn) bool {
	m.mu.Lock()
	if m.sock != sock || sock.isClosed() {
		m.mu.Unlock()
		return false
	}
	l := newLink(conn, m.policy.SendBuffer)
	sock.link = l
	m.state = types.StateConnected
	epoch := m.epoch.Add(1)
	m.mu.Unlock()

	m.logger.Info().Str("socket_id", sock.id).Uint64("epoch", epoch).Msg("connected")

	go l.writePump(func(err error) {
		m.logger.Warn().Err(err).Str("socket_id", sock.id).Msg("write failed")
	})
	go func() {
		err := l.readPump(m.dispatchFrame)
		m.dropped(sock, l, err)
	}()
	m.notify(types.StateConnected)
	return true
}

// dropped handles a transport that closed without Disconnect being called.
func (m *Manager) dropped(sock *socket, l *link, err error) {
	l.close()

	m.mu.Lock()
	if m.sock != sock || sock.link != l || sock.isClosed() {
		m.mu.Unlock()
		return
	}
	sock.link = nil
	m.state = types.StateConnecting
	m.mu.Unlock()

	m.logger.Warn().Err(err).Str("socket_id", sock.id).Msg("connection lost, reconnecting")
	m.notify(types.StateConnecting)
	go m.open(sock, false)
}

// Epoch counts successful connections. It changes every time a new
// physical connection is attached, so server-side room membership from
// an older epoch is gone.
func (m *Manager) Epoch() uint64 { return m.epoch.Load() }

// OnStateChange registers fn to run after every state transition. The
// returned func unregisters it.
func (m *Manager) OnStateChange(fn func(types.ConnectionState)) (remove func()) {
	m.mu.Lock()
	id := m.nextHook
	m.nextHook++
	m.hooks[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.hooks, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(state types.ConnectionState) {
	m.mu.RLock()
	fns := make([]func(types.ConnectionState), 0, len(m.hooks))
	for _, fn := range m.hooks {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(state)
	}
}
