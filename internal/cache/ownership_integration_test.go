//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisOwnershipRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := Open(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisOwnership(client, time.Minute)

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, 1, []int64{1, 2, 3}))
	require.NoError(t, c.Set(ctx, 2, []int64{2}))

	ids, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int64{1, 2, 3}, ids)

	require.NoError(t, c.Invalidate(ctx, 1, 2, 3))
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	ttl, err := client.TTL(ctx, Key(2)).Result()
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, time.Duration(0))
}
