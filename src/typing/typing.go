// Package typing coordinates typing indicators for one room: debounced
// start/stop signals for the local user, and a self-expiring display of
// the remote typist.
package typing

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

// Emitter sends outbound events over the shared connection.
type Emitter interface {
	Emit(kind types.EventKind, payload any) error
}

// Options configures the two timers.
type Options struct {
	// IdleTimeout ends the local typing state after no keystrokes.
	IdleTimeout time.Duration
	// DisplayTimeout clears the remote typist if no stop arrives.
	DisplayTimeout time.Duration
}

// DefaultOptions returns a 2s idle timeout and a 3s display timeout.
func DefaultOptions() Options {
	return Options{IdleTimeout: 2 * time.Second, DisplayTimeout: 3 * time.Second}
}

// Coordinator runs both typing tracks for one room. Only one remote
// typist is shown; the latest one wins.
type Coordinator struct {
	emitter  Emitter
	room     types.RoomIdentity
	userName string
	opts     Options
	logger   zerolog.Logger

	mu          sync.Mutex
	onChange    func(types.TypingState, bool)
	localTyping bool
	localTimer  *time.Timer
	localGen    uint64
	remote      *types.TypingState
	remoteTimer *time.Timer
	remoteGen   uint64
	closed      bool
}

// New creates a Coordinator for room, emitting as userName.
func New(e Emitter, room types.RoomIdentity, userName string, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultOptions().IdleTimeout
	}
	if opts.DisplayTimeout <= 0 {
		opts.DisplayTimeout = DefaultOptions().DisplayTimeout
	}
	return &Coordinator{
		emitter:  e,
		room:     room,
		userName: userName,
		opts:     opts,
		logger:   logger.With().Str("component", "typing").Str("room", room.Key()).Logger(),
	}
}

// OnChange registers fn to be called whenever the remote typist changes.
func (c *Coordinator) OnChange(fn func(state types.TypingState, typing bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Keystroke records local typing. The first keystroke emits typing;
// every keystroke restarts the idle timer.
func (c *Coordinator) Keystroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.localGen++
	gen := c.localGen
	if c.localTimer != nil {
		c.localTimer.Stop()
	}
	c.localTimer = time.AfterFunc(c.opts.IdleTimeout, func() { c.localIdle(gen) })

	if !c.localTyping {
		c.localTyping = true
		c.emit(types.EventTyping, types.TypingPayload{RoomID: c.room.Key(), UserName: c.userName})
	}
}

// StopLocal ends the local typing state now, e.g. after sending.
func (c *Coordinator) StopLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocal()
}

func (c *Coordinator) stopLocal() {
	if !c.localTyping {
		return
	}
	c.localGen++
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
	c.localTyping = false
	c.emit(types.EventStopTyping, types.StopTypingPayload{RoomID: c.room.Key()})
}

func (c *Coordinator) localIdle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.localGen || !c.localTyping {
		return
	}
	c.localTyping = false
	c.localTimer = nil
	c.emit(types.EventStopTyping, types.StopTypingPayload{RoomID: c.room.Key()})
}

// LocalTyping reports whether the local user is in the typing state.
func (c *Coordinator) LocalTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localTyping
}

// OnRemoteTyping shows userName as typing until a stop arrives or the
// display timeout passes.
func (c *Coordinator) OnRemoteTyping(userName string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.remote = &types.TypingState{UserName: userName}
	c.remoteGen++
	gen := c.remoteGen
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
	}
	c.remoteTimer = time.AfterFunc(c.opts.DisplayTimeout, func() { c.remoteExpired(gen) })
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(types.TypingState{UserName: userName}, true)
	}
}

// OnRemoteStop clears the remote typist.
func (c *Coordinator) OnRemoteStop() {
	c.mu.Lock()
	if c.remote == nil {
		c.mu.Unlock()
		return
	}
	c.clearRemote()
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(types.TypingState{}, false)
	}
}

func (c *Coordinator) remoteExpired(gen uint64) {
	c.mu.Lock()
	if gen != c.remoteGen || c.remote == nil {
		c.mu.Unlock()
		return
	}
	c.logger.Debug().Str("user_name", c.remote.UserName).Msg("typing indicator expired")
	c.clearRemote()
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(types.TypingState{}, false)
	}
}

func (c *Coordinator) clearRemote() {
	c.remote = nil
	c.remoteGen++
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
}

// Current returns the remote typist, if any.
func (c *Coordinator) Current() (types.TypingState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return types.TypingState{}, false
	}
	return *c.remote, true
}

// Close emits a pending stop_typing and stops both timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopLocal()
	c.clearRemote()
	c.closed = true
}

func (c *Coordinator) emit(kind types.EventKind, payload any) {
	if err := c.emitter.Emit(kind, payload); err != nil {
		c.logger.Debug().Err(err).Str("event", string(kind)).Msg("typing signal not sent")
	}
}
