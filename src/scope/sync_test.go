package scope

import (
	"encoding/json"
	"testing"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTarget records changes forwarded by the sync.
type recordingTarget struct {
	received []Change
}

func (r *recordingTarget) ApplyScope(c Change) {
	r.received = append(r.received, c)
}

func envelope(t *testing.T, instance string, c Change) string {
	t.Helper()
	data, err := json.Marshal(syncEnvelope{InstanceID: instance, Change: c})
	require.NoError(t, err)
	return string(data)
}

func TestSyncForwardsForeignChanges(t *testing.T) {
	target := &recordingTarget{}
	s := NewRedisSync(DefaultRedisConfig(), target, zerolog.Nop())
	cs3 := types.NewRoomIdentity("CS", 3)

	s.handlePayload(envelope(t, s.instanceID, Change{UserID: "u1", Room: cs3}))
	assert.Empty(t, target.received)

	s.handlePayload(envelope(t, "other", Change{UserID: "u1", Room: cs3}))
	s.handlePayload(envelope(t, "other", Change{UserID: "u1", Cleared: true}))
	require.Len(t, target.received, 2)
	assert.Equal(t, cs3, target.received[0].Room)
	assert.True(t, target.received[1].Cleared)
}

func TestSyncDropsInvalidChanges(t *testing.T) {
	target := &recordingTarget{}
	s := NewRedisSync(DefaultRedisConfig(), target, zerolog.Nop())

	s.handlePayload("not json")
	s.handlePayload(envelope(t, "other", Change{Room: types.NewRoomIdentity("CS", 3)}))
	s.handlePayload(envelope(t, "other", Change{UserID: "u1", Room: types.NewRoomIdentity("CS", 0)}))
	assert.Empty(t, target.received)
}

func TestSyncAvailableFalseBeforeStart(t *testing.T) {
	s := NewRedisSync(DefaultRedisConfig(), &recordingTarget{}, zerolog.Nop())
	assert.False(t, s.Available())
	assert.Equal(t, "chatsync:scope:changes", s.channel)
}

func TestSyncInstanceIDUnique(t *testing.T) {
	a := NewRedisSync(DefaultRedisConfig(), &recordingTarget{}, zerolog.Nop())
	b := NewRedisSync(DefaultRedisConfig(), &recordingTarget{}, zerolog.Nop())
	assert.NotEqual(t, a.instanceID, b.instanceID)
}
