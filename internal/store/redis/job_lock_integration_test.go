//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (string, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func TestIntegration_JobLock(t *testing.T) {
	ctx := context.Background()
	addr, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	first, err := Connect(ctx, Options{Addr: addr, TTL: 300 * time.Millisecond})
	require.NoError(t, err)
	defer first.Close()

	second, err := Connect(ctx, Options{Addr: addr, TTL: 300 * time.Millisecond})
	require.NoError(t, err)
	defer second.Close()

	release, ok, err := first.TryAcquire(ctx, "delivery")
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("held lock survives past ttl", func(t *testing.T) {
		time.Sleep(time.Second)
		_, ok, err := second.TryAcquire(ctx, "delivery")
		require.NoError(t, err)
		require.False(t, ok)
	})

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	t.Run("released lock can be taken", func(t *testing.T) {
		release, ok, err := second.TryAcquire(ctx, "delivery")
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, release(ctx))
	})
}
