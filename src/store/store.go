// Package store reconciles a fetched message history with pushed events
// into one ordered, duplicate-free sequence.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Fetcher loads a bounded page of room history.
type Fetcher interface {
	FetchMessages(ctx context.Context, room types.RoomIdentity, limit int) ([]types.Message, error)
}

type pendingOp struct {
	msg      types.Message
	deletion bool
}

// Store is the message sequence for one room session. Until the first
// snapshot lands, pushed events are queued in arrival order.
type Store struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu       sync.Mutex
	room     types.RoomIdentity
	messages []types.Message
	index    map[string]int
	loaded   bool
	pending  []pendingOp
}

// New creates an empty, not yet loaded Store.
func New(f Fetcher, logger zerolog.Logger) *Store {
	return &Store{
		fetcher: f,
		logger:  logger.With().Str("component", "store").Logger(),
		index:   make(map[string]int),
	}
}

// LoadSnapshot fetches up to limit messages and replaces the sequence
// with them, then replays queued push events. On fetch failure the
// sequence becomes empty, queued events are still replayed, and the
// error is returned.
func (s *Store) LoadSnapshot(ctx context.Context, room types.RoomIdentity, limit int) error {
	msgs, err := s.fetcher.FetchMessages(ctx, room, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room.Key()).Msg("history fetch failed, starting empty")
		msgs = nil
		err = fmt.Errorf("load snapshot %s: %w", room.Key(), err)
	}
	s.ReplaceSnapshot(room, msgs)
	return err
}

// ReplaceSnapshot replaces the sequence with msgs, dropping duplicate and
// empty ids, then replays queued push events in arrival order. It is the
// only operation that replaces the sequence wholesale.
func (s *Store) ReplaceSnapshot(room types.RoomIdentity, msgs []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.room = room
	s.messages = make([]types.Message, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if _, dup := s.index[m.ID]; dup || m.ID == "" {
			continue
		}
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
	}
	s.loaded = true

	queued := s.pending
	s.pending = nil
	for _, op := range queued {
		if op.deletion {
			s.applyDeletion(op.msg.ID, op.msg)
		} else {
			s.appendPushed(op.msg)
		}
	}
	s.logger.Debug().
		Str("room", room.Key()).
		Int("snapshot", len(msgs)).
		Int("replayed", len(queued)).
		Msg("snapshot applied")
}

// AppendPushed adds msg at the tail unless a message with the same id is
// already present. Before the first snapshot the message is queued. It
// reports whether msg was added or queued.
func (s *Store) AppendPushed(msg types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.pending = append(s.pending, pendingOp{msg: msg})
		return true
	}
	return s.appendPushed(msg)
}

func (s *Store) appendPushed(msg types.Message) bool {
	if _, dup := s.index[msg.ID]; dup {
		s.logger.Debug().Str("message_id", msg.ID).Msg("duplicate message ignored")
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return true
}

// ApplyDeletion replaces the message with id by patched in place.
// Unknown ids are dropped; they may belong to an unloaded page.
func (s *Store) ApplyDeletion(id string, patched types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		patched.ID = id
		s.pending = append(s.pending, pendingOp{msg: patched, deletion: true})
		return true
	}
	return s.applyDeletion(id, patched)
}

func (s *Store) applyDeletion(id string, patched types.Message) bool {
	i, ok := s.index[id]
	if !ok {
		s.logger.Debug().Str("message_id", id).Msg("deletion for unknown message dropped")
		return false
	}
	patched.ID = id
	s.messages[i] = patched
	return true
}

// Messages returns a copy of the current sequence.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get returns the message with id.
func (s *Store) Get(id string) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return types.Message{}, false
	}
	return s.messages[i], true
}

// Len returns the number of messages in the sequence.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Loaded reports whether a snapshot has been applied.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Pending returns the number of queued push events.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
