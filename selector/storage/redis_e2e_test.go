//go:build e2e

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pokt-network/discovery/selector"
)

// setupRedisContainer starts a Redis container for testing and returns the address and cleanup function.
func setupRedisContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "failed to get container host")

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err, "failed to get container port")

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return fmt.Sprintf("%s:%s", host, port.Port()), cleanup
}

func TestRedisStore_SharedAcrossInstances(t *testing.T) {
	address, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()
	config := RedisConfig{Address: address, KeyPrefix: "test:selection:"}

	writer, err := NewRedisStore(ctx, config)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := NewRedisStore(ctx, config)
	require.NoError(t, err)
	defer reader.Close()

	saved := testSelection(time.Hour)
	require.NoError(t, writer.Save(ctx, saved))

	loaded, err := reader.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, saved.Addr, loaded.Addr)

	require.NoError(t, reader.Clear(ctx))
	_, err = writer.Load(ctx)
	require.ErrorIs(t, err, selector.ErrNoStoredSelection)
}

func TestRedisStore_RealExpiry(t *testing.T) {
	address, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Address: address, KeyPrefix: "test:selection:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, testSelection(500*time.Millisecond)))

	require.Eventually(t, func() bool {
		_, err := store.Load(ctx)
		return err == selector.ErrNoStoredSelection
	}, 5*time.Second, 100*time.Millisecond)
}
