package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/selector"
)

// Compile-time check that RedisStore implements selector.Store.
var _ selector.Store = (*RedisStore)(nil)

// currentKey is the suffix of the single key holding the selection.
const currentKey = "current"

// Redis hash field names
const (
	fieldAddress    = "address"
	fieldSelectedAt = "selected_at"
	fieldExpiresAt  = "expires_at"
	fieldRegressed  = "regressed"
)

// RedisStore shares the selection across instances through Redis.
//
// The selection is stored as a Redis Hash at {keyPrefix}current, expiring
// at the selection's own expiry, with fields:
// - address: the selected node address
// - selected_at: Unix milliseconds
// - expires_at: Unix milliseconds
// - regressed: "1" or "0"
type RedisStore struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisStore creates a Redis-backed store.
// It validates the connection by sending a PING command.
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	config.HydrateDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Validate connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Address, err)
	}

	return &RedisStore{
		client: client,
		key:    config.KeyPrefix + currentKey,
	}, nil
}

func (r *RedisStore) Load(ctx context.Context) (selector.StoredSelection, error) {
	if r.closed.Load() {
		return selector.StoredSelection{}, selector.ErrStoreClosed
	}

	result, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return selector.StoredSelection{}, fmt.Errorf("failed to get selection from Redis: %w", err)
	}
	if len(result) == 0 {
		return selector.StoredSelection{}, selector.ErrNoStoredSelection
	}

	return parseSelection(result)
}

// Save replaces the stored selection. An already expired selection clears the store.
func (r *RedisStore) Save(ctx context.Context, selection selector.StoredSelection) error {
	if r.closed.Load() {
		return selector.ErrStoreClosed
	}
	if !selection.ExpiresAt.After(time.Now()) {
		return r.Clear(ctx)
	}

	fields := map[string]interface{}{
		fieldAddress:    string(selection.Addr),
		fieldSelectedAt: strconv.FormatInt(selection.SelectedAt.UnixMilli(), 10),
		fieldExpiresAt:  strconv.FormatInt(selection.ExpiresAt.UnixMilli(), 10),
		fieldRegressed:  formatBool(selection.Regressed),
	}

	// Replace atomically so a concurrent reader never sees a mix of two selections.
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	pipe.HSet(ctx, r.key, fields)
	pipe.PExpireAt(ctx, r.key, selection.ExpiresAt)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set selection in Redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if r.closed.Load() {
		return selector.ErrStoreClosed
	}
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete selection from Redis: %w", err)
	}
	return nil
}

// Close releases resources held by the store.
func (r *RedisStore) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

// parseSelection converts Redis hash data into a StoredSelection.
func parseSelection(data map[string]string) (selector.StoredSelection, error) {
	var selection selector.StoredSelection

	addr, ok := data[fieldAddress]
	if !ok || addr == "" {
		return selection, fmt.Errorf("stored selection has no %s", fieldAddress)
	}
	selection.Addr = protocol.EndpointAddr(addr)

	selectedAt, err := parseMillis(data, fieldSelectedAt)
	if err != nil {
		return selection, err
	}
	selection.SelectedAt = selectedAt

	expiresAt, err := parseMillis(data, fieldExpiresAt)
	if err != nil {
		return selection, err
	}
	selection.ExpiresAt = expiresAt

	selection.Regressed = data[fieldRegressed] == "1"
	return selection, nil
}

func parseMillis(data map[string]string, field string) (time.Time, error) {
	v, ok := data[field]
	if !ok {
		return time.Time{}, fmt.Errorf("stored selection has no %s", field)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return time.UnixMilli(ms), nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
