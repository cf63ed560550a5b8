// Package storage provides backends for persisting the current selection.
//
// The storage package provides implementations of the selector.Store interface:
//   - memory: In-memory store (single instance, lost on restart)
//   - redis: Redis-based store (shared across instances, survives restarts)
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pokt-network/discovery/selector"
)

// Store types.
const (
	StoreTypeNone   = ""
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string `yaml:"address"`

	// Password for Redis authentication (optional).
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// KeyPrefix is prepended to all keys stored in Redis.
	// Default: "discovery:selection:"
	KeyPrefix string `yaml:"key_prefix"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// DialTimeout is the timeout for establishing new connections.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads.
	// Default: 3s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the timeout for socket writes.
	// Default: 3s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		KeyPrefix:    "discovery:selection:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// HydrateDefaults fills in zero values with defaults.
func (c *RedisConfig) HydrateDefaults() {
	defaults := DefaultRedisConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaults.KeyPrefix
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
}

// StorageConfig selects the selection store backend.
type StorageConfig struct {
	// Type is "memory", "redis", or empty for no persistence.
	Type string `yaml:"type"`

	// Redis-specific configuration (only used when Type is "redis").
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// Validate checks the backend type.
func (c StorageConfig) Validate() error {
	switch c.Type {
	case StoreTypeNone, StoreTypeMemory, StoreTypeRedis:
		return nil
	default:
		return fmt.Errorf("unknown selection store type %q", c.Type)
	}
}

// Enabled reports whether a store is configured.
func (c StorageConfig) Enabled() bool {
	return c.Type != StoreTypeNone
}

// NewStore builds the configured backend. Callers should check Enabled first.
func NewStore(ctx context.Context, config StorageConfig) (selector.Store, error) {
	switch config.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		redisConfig := DefaultRedisConfig()
		if config.Redis != nil {
			redisConfig = *config.Redis
		}
		store, err := NewRedisStore(ctx, redisConfig)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown selection store type %q", config.Type)
	}
}
