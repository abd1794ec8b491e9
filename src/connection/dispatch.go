package connection

import (
	"slices"

	"github.com/orchestra-mcp/chatsync/src/types"
)

// On attaches l at the transport. Calling it twice attaches l twice;
// consumers go through Listeners instead.
func (m *Manager) On(kind types.EventKind, l *Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], l)
}

// Off detaches one attachment of l.
func (m *Manager) Off(kind types.EventKind, l *Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := m.handlers[kind]
	if i := slices.Index(hs, l); i >= 0 {
		hs = slices.Delete(hs, i, i+1)
	}
	if len(hs) == 0 {
		delete(m.handlers, kind)
		return
	}
	m.handlers[kind] = hs
}

func (m *Manager) dispatchFrame(f types.Frame) {
	evt, err := types.DecodeEvent(f)
	if err != nil {
		m.logger.Warn().Err(err).Str("event", f.Event).Msg("dropping inbound frame")
		return
	}
	m.Dispatch(evt)
}

// Dispatch delivers evt to every attached listener in attachment order.
// Listener panics are recovered and logged.
func (m *Manager) Dispatch(evt types.Event) {
	m.mu.RLock()
	ls := slices.Clone(m.handlers[evt.Kind()])
	m.mu.RUnlock()

	if len(ls) == 0 {
		m.logger.Debug().Str("event", string(evt.Kind())).Msg("no listener")
		return
	}
	for _, l := range ls {
		m.invoke(l, evt)
	}
}

func (m *Manager) invoke(l *Listener, evt types.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Interface("panic", r).
				Str("event", string(evt.Kind())).
				Str("listener", l.name).
				Msg("listener panicked")
		}
	}()
	l.fn(evt)
}
