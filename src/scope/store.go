// Package scope persists the last room scope a user selected so it
// survives restarts.
package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoScope is returned by Load when nothing has been saved.
var ErrNoScope = errors.New("no scope selected")

// Store persists one scope record per user.
type Store interface {
	Load(ctx context.Context, userID string) (types.RoomIdentity, error)
	Save(ctx context.Context, userID string, room types.RoomIdentity) error
	Clear(ctx context.Context, userID string) error
}

// MemoryStore keeps scopes for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]types.RoomIdentity
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]types.RoomIdentity)}
}

func (m *MemoryStore) Load(_ context.Context, userID string) (types.RoomIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.scopes[userID]
	if !ok {
		return types.RoomIdentity{}, ErrNoScope
	}
	return r, nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, room types.RoomIdentity) error {
	if err := room.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[userID] = room
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, userID)
	return nil
}

// RedisStore keeps scopes in Redis under prefix+userID.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisStore creates a store backed by a new Redis client.
func NewRedisStore(cfg *RedisConfig, logger zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger.With().Str("component", "scope-store").Logger(),
	}
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

func (s *RedisStore) Load(ctx context.Context, userID string) (types.RoomIdentity, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.RoomIdentity{}, ErrNoScope
	}
	if err != nil {
		return types.RoomIdentity{}, fmt.Errorf("load scope: %w", err)
	}
	return decodeScope(data)
}

func (s *RedisStore) Save(ctx context.Context, userID string, room types.RoomIdentity) error {
	data, err := encodeScope(room)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("save scope: %w", err)
	}
	s.logger.Debug().Str("user_id", userID).Str("room", room.Key()).Msg("scope saved")
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeScope(room types.RoomIdentity) ([]byte, error) {
	if err := room.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(room)
}

func decodeScope(data []byte) (types.RoomIdentity, error) {
	var room types.RoomIdentity
	if err := json.Unmarshal(data, &room); err != nil {
		return types.RoomIdentity{}, fmt.Errorf("decode scope: %w", err)
	}
	if err := room.Validate(); err != nil {
		return types.RoomIdentity{}, fmt.Errorf("decode scope: %w", err)
	}
	return room, nil
}
