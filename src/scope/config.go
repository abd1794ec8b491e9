package scope

import (
	"github.com/caarlos0/env/v11"
)

// RedisConfig holds connection settings for the Redis scope store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`         // default "localhost:6379"
	Password string `env:"REDIS_PASSWORD"`     // default ""
	DB       int    `env:"REDIS_DB"`           // default 0
	Prefix   string `env:"REDIS_SCOPE_PREFIX"` // default "chatsync:scope:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "chatsync:scope:",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Unset variables keep their defaults; an unparsable value yields the
// defaults for every field.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()
	if err := env.Parse(cfg); err != nil {
		return DefaultRedisConfig()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultRedisConfig().Addr
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisConfig().Prefix
	}
	return cfg
}
