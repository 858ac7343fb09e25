package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: srv.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestSetNXFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	key := client.IdempotencyKey("buyer|POST|/api/v1/orders", "abc")

	ok, err := client.SetNX(ctx, key, "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	srv.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestSetOverwritesAndDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k", "v1", 0))
	require.NoError(t, client.Set(ctx, "k", "v2", time.Minute))
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	require.NoError(t, srv.Set("bazaar:lock:job", "owner-a"))

	deleted, err := client.CompareAndDelete(ctx, "bazaar:lock:job", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, srv.Exists("bazaar:lock:job"))

	deleted, err = client.CompareAndDelete(ctx, "bazaar:lock:job", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, srv.Exists("bazaar:lock:job"))

	deleted, err = client.CompareAndDelete(ctx, "bazaar:lock:missing", "owner-a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bazaar:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "bazaar:lock:cron", client.LockKey("cron"))
	assert.Equal(t, "bazaar:idempotency:id", client.IdempotencyKey("", "id"))
	assert.Equal(t, "bazaar", Key())
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 200 * time.Millisecond}, nil)
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DB: 5})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB, "url database wins")
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = clientOptions(config.RedisConfig{Address: "cache:6380", DB: 3, ReadTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, time.Second, opts.ReadTimeout)

	_, err = clientOptions(config.RedisConfig{})
	assert.Error(t, err)
}
