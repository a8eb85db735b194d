package lock

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisLocker(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, addr, 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, "test:", nil)
	unlock, err := l.Lock(ctx, "tenant-a")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "tenant-a")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	unlock2, err := l.Lock(ctx, "tenant-a")
	require.NoError(t, err)
	unlock2()

	exists, err := client.Exists(ctx, "test:tenant-a").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisLockerExpiredTokenIsNotReleased(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, addr, 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, "test:", nil)
	l.TTL = 100 * time.Millisecond
	stale, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	fresh, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	stale()
	exists, err := client.Exists(ctx, "test:k").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "stale holder must not drop the new lock")
	fresh()
}
