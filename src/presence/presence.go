// Package presence projects the server's active-user count for a room.
package presence

import "sync"

// Tracker holds the last count the server reported. Every update
// overwrites it; nothing is counted locally.
type Tracker struct {
	mu    sync.RWMutex
	count int
}

// NewTracker returns a Tracker at zero.
func NewTracker() *Tracker { return &Tracker{} }

// OnJoined applies the count carried by a user_joined push.
func (t *Tracker) OnJoined(count int) { t.set(count) }

// OnLeft applies the count carried by a user_left push.
func (t *Tracker) OnLeft(count int) { t.set(count) }

// OnSnapshot applies a full active_users count, from the server or from
// the history collaborator.
func (t *Tracker) OnSnapshot(count int) { t.set(count) }

// Count returns the current count.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

func (t *Tracker) set(count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	t.count = count
	t.mu.Unlock()
}
