package scope

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Change is a scope selection or reset made by some process.
type Change struct {
	UserID  string             `json:"user_id"`
	Room    types.RoomIdentity `json:"room"`
	Cleared bool               `json:"cleared,omitempty"`
}

// Sync relays scope changes between processes of the same user.
type Sync interface {
	// Publish announces a change to every other process.
	Publish(c Change) error

	// Start begins listening for changes from other processes.
	Start() error

	// Stop shuts down the subscription.
	Stop() error

	// Available reports whether the sync is connected.
	Available() bool
}

// Target receives changes made by other processes.
type Target interface {
	ApplyScope(c Change)
}

// syncEnvelope tags a change with the publishing instance so a process
// can skip its own changes.
type syncEnvelope struct {
	InstanceID string `json:"instance_id"`
	Change     Change `json:"change"`
}

// RedisSync relays scope changes via Redis pub/sub.
type RedisSync struct {
	client     *redis.Client
	channel    string
	instanceID string
	target     Target
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisSync creates a RedisSync publishing on cfg.Prefix+"changes".
func NewRedisSync(cfg *RedisConfig, target Target, logger zerolog.Logger) *RedisSync {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisSync{
		client:     client,
		channel:    cfg.Prefix + "changes",
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "scope-sync").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the change channel.
func (s *RedisSync) Start() error {
	if err := s.client.Ping(s.ctx).Err(); err != nil {
		return err
	}

	sub := s.client.Subscribe(s.ctx, s.channel)
	if _, err := sub.Receive(s.ctx); err != nil {
		_ = sub.Close()
		return err
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.listen(sub)

	s.logger.Info().
		Str("instance_id", s.instanceID).
		Str("channel", s.channel).
		Msg("scope sync started")
	return nil
}

// Publish announces c to the other processes.
func (s *RedisSync) Publish(c Change) error {
	data, err := json.Marshal(syncEnvelope{InstanceID: s.instanceID, Change: c})
	if err != nil {
		return err
	}
	return s.client.Publish(s.ctx, s.channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (s *RedisSync) Stop() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.client.Close()
}

// Available reports whether the sync is subscribed.
func (s *RedisSync) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *RedisSync) listen(sub *redis.PubSub) {
	defer s.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handlePayload(msg.Payload)
		case <-s.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an envelope and forwards changes made elsewhere.
func (s *RedisSync) handlePayload(payload string) {
	var env syncEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Error().Err(err).Msg("failed to decode scope change")
		return
	}
	if env.InstanceID == s.instanceID {
		return
	}
	if env.Change.UserID == "" {
		s.logger.Warn().Str("from_instance", env.InstanceID).Msg("scope change without user dropped")
		return
	}
	if !env.Change.Cleared {
		if err := env.Change.Room.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("from_instance", env.InstanceID).Msg("invalid scope change dropped")
			return
		}
	}

	s.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("user_id", env.Change.UserID).
		Msg("scope change from another process")
	s.target.ApplyScope(env.Change)
}
