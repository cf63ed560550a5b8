package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/selector"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func testSelection(ttl time.Duration) selector.StoredSelection {
	now := time.Now().Truncate(time.Millisecond)
	return selector.StoredSelection{
		Addr:       protocol.EndpointAddr("https://node-a.test"),
		SelectedAt: now,
		ExpiresAt:  now.Add(ttl),
		Regressed:  true,
	}
}

// ===== Shared Store Behaviour =====

func Test_Stores(t *testing.T) {
	backends := []struct {
		name  string
		build func(t *testing.T) selector.Store
	}{
		{
			name:  "memory",
			build: func(t *testing.T) selector.Store { return NewMemoryStore() },
		},
		{
			name: "redis",
			build: func(t *testing.T) selector.Store {
				store, _ := newMiniredisStore(t)
				return store
			},
		},
	}

	for _, backend := range backends {
		t.Run(backend.name+"/empty store", func(t *testing.T) {
			store := backend.build(t)
			_, err := store.Load(context.Background())
			require.ErrorIs(t, err, selector.ErrNoStoredSelection)
			require.NoError(t, store.Clear(context.Background()))
		})

		t.Run(backend.name+"/save and load", func(t *testing.T) {
			ctx := context.Background()
			store := backend.build(t)
			saved := testSelection(time.Hour)

			require.NoError(t, store.Save(ctx, saved))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, saved.Addr, loaded.Addr)
			require.True(t, saved.SelectedAt.Equal(loaded.SelectedAt))
			require.True(t, saved.ExpiresAt.Equal(loaded.ExpiresAt))
			require.True(t, loaded.Regressed)
		})

		t.Run(backend.name+"/save replaces", func(t *testing.T) {
			ctx := context.Background()
			store := backend.build(t)

			require.NoError(t, store.Save(ctx, testSelection(time.Hour)))
			next := testSelection(time.Hour)
			next.Addr = "https://node-b.test"
			next.Regressed = false
			require.NoError(t, store.Save(ctx, next))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, next.Addr, loaded.Addr)
			require.False(t, loaded.Regressed)
		})

		t.Run(backend.name+"/clear", func(t *testing.T) {
			ctx := context.Background()
			store := backend.build(t)

			require.NoError(t, store.Save(ctx, testSelection(time.Hour)))
			require.NoError(t, store.Clear(ctx))
			require.NoError(t, store.Clear(ctx))

			_, err := store.Load(ctx)
			require.ErrorIs(t, err, selector.ErrNoStoredSelection)
		})

		t.Run(backend.name+"/closed", func(t *testing.T) {
			ctx := context.Background()
			store := backend.build(t)
			require.NoError(t, store.Close())

			_, err := store.Load(ctx)
			require.ErrorIs(t, err, selector.ErrStoreClosed)
			require.ErrorIs(t, store.Save(ctx, testSelection(time.Hour)), selector.ErrStoreClosed)
		})
	}
}

// ===== Redis Specifics =====

func Test_RedisStore_ExpiresWithSelection(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	require.NoError(t, store.Save(ctx, testSelection(time.Minute)))
	require.True(t, mr.Exists(DefaultRedisConfig().KeyPrefix+currentKey))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, selector.ErrNoStoredSelection)
}

func Test_RedisStore_ExpiredSaveClears(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	require.NoError(t, store.Save(ctx, testSelection(time.Hour)))
	require.NoError(t, store.Save(ctx, testSelection(-time.Second)))
	require.False(t, mr.Exists(DefaultRedisConfig().KeyPrefix+currentKey))
}

func Test_RedisStore_MalformedHash(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniredisStore(t)

	mr.HSet(DefaultRedisConfig().KeyPrefix+currentKey, fieldAddress, "https://node-a.test", fieldSelectedAt, "yesterday")

	_, err := store.Load(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, selector.ErrNoStoredSelection)
}

func Test_NewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisConfig{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}

// ===== Config =====

func Test_StorageConfig(t *testing.T) {
	require.NoError(t, StorageConfig{}.Validate())
	require.False(t, StorageConfig{}.Enabled())
	require.NoError(t, StorageConfig{Type: StoreTypeRedis}.Validate())
	require.Error(t, StorageConfig{Type: "etcd"}.Validate())

	store, err := NewStore(context.Background(), StorageConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
}

func Test_RedisConfig_HydrateDefaults(t *testing.T) {
	config := RedisConfig{Address: "redis:6379"}
	config.HydrateDefaults()

	require.Equal(t, "redis:6379", config.Address)
	require.Equal(t, "discovery:selection:", config.KeyPrefix)
	require.Equal(t, 10, config.PoolSize)
	require.Equal(t, 5*time.Second, config.DialTimeout)
}
