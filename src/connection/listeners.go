package connection

import (
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Listener is a push-event handler. Its identity is its pointer: the same
// *Listener added twice for one event is attached once.
type Listener struct {
	name string
	fn   func(types.Event)
}

// NewListener wraps fn as a Listener. name is used in logs only.
func NewListener(name string, fn func(types.Event)) *Listener {
	return &Listener{name: name, fn: fn}
}

// Name returns the listener's log name.
func (l *Listener) Name() string { return l.name }

// Transport attaches handlers to the underlying connection. It does not
// de-duplicate.
type Transport interface {
	On(kind types.EventKind, l *Listener)
	Off(kind types.EventKind, l *Listener)
}

// ListenerRegistry guarantees each listener is attached to the transport
// at most once per event kind.
type ListenerRegistry struct {
	transport Transport
	logger    zerolog.Logger

	mu       sync.Mutex
	attached map[types.EventKind]map[*Listener]struct{}
}

// NewListenerRegistry creates a registry in front of t.
func NewListenerRegistry(t Transport, logger zerolog.Logger) *ListenerRegistry {
	return &ListenerRegistry{
		transport: t,
		logger:    logger,
		attached:  make(map[types.EventKind]map[*Listener]struct{}),
	}
}

// AddListener attaches l for kind unless it is already attached.
// It reports whether the transport was called.
func (r *ListenerRegistry) AddListener(kind types.EventKind, l *Listener) bool {
	if l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.attached[kind]
	if !ok {
		set = make(map[*Listener]struct{})
		r.attached[kind] = set
	}
	if _, dup := set[l]; dup {
		r.logger.Debug().Str("event", string(kind)).Str("listener", l.name).Msg("listener already attached")
		return false
	}
	r.transport.On(kind, l)
	set[l] = struct{}{}
	return true
}

// RemoveListener detaches l for kind if it is attached.
func (r *ListenerRegistry) RemoveListener(kind types.EventKind, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.attached[kind]
	if !ok {
		return false
	}
	if _, ok := set[l]; !ok {
		return false
	}
	r.transport.Off(kind, l)
	delete(set, l)
	if len(set) == 0 {
		delete(r.attached, kind)
	}
	return true
}

// RemoveAll detaches every listener of every consumer. Only full teardown
// (logout) should call it.
func (r *ListenerRegistry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for kind, set := range r.attached {
		for l := range set {
			r.transport.Off(kind, l)
			n++
		}
	}
	r.attached = make(map[types.EventKind]map[*Listener]struct{})
	r.logger.Debug().Int("listeners", n).Msg("all listeners removed")
}

// Has reports whether l is attached for kind.
func (r *ListenerRegistry) Has(kind types.EventKind, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attached[kind][l]
	return ok
}

// Count returns the total number of attached listeners.
func (r *ListenerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.attached {
		n += len(set)
	}
	return n
}
