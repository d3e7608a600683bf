package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration test skipped in -short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOptionsFromURL(t *testing.T) {
	opts, err := options(ClientConfig{URL: "rediss://:secret@cache.internal:6380/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.NotNil(t, opts.TLSConfig)

	opts, err = options(ClientConfig{Addr: "localhost:6379", TLSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.NotNil(t, opts.TLSConfig)

	_, err = options(ClientConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	client := setupTestRedis(t)
	rl := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "trades:0xabc", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "trades:0xabc", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "trades:0xdef", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	require.Eventually(t, func() bool {
		ok, err := rl.Allow(ctx, "trades:0xabc", 3, time.Second)
		return err == nil && ok
	}, 3*time.Second, 100*time.Millisecond)

	ok, err = rl.Allow(ctx, "anything", 0, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "zero limit disables limiting")
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	client := setupTestRedis(t)
	bus := NewSignalBus(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "trades")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "trades", []byte(`{"kind":"buy"}`)))

	select {
	case got := <-msgs:
		assert.JSONEq(t, `{"kind":"buy"}`, string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-msgs
		return !open
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSignalBusStream(t *testing.T) {
	client := setupTestRedis(t)
	bus := NewSignalBus(client)
	ctx := context.Background()

	empty, err := bus.StreamRead(ctx, "stream:trades", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, "stream:trades", []byte(p)))
	}

	first, err := bus.StreamRead(ctx, "stream:trades", "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", string(first[0].Payload))
	assert.Equal(t, "b", string(first[1].Payload))

	rest, err := bus.StreamRead(ctx, "stream:trades", first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))
}
