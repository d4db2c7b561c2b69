package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcoach/credits-backend/pkg/config"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	key := Key("rl", "user", "spend", "student-1")

	count, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(30 * time.Second)
	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	mr.FastForward(31 * time.Second)
	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSetNXFirstWriterWins(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	key := client.IdempotencyKey("stripe-webhook", "evt_1")

	won, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = client.SetNX(ctx, key, "2", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDeleteOnlyForOwner(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	key := Key("lock", "cron-worker", "test")
	require.NoError(t, mr.Set(key, "owner-a"))

	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists(key))

	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists(key))
}

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 100 * time.Millisecond}, nil)
	assert.Error(t, err)
}

func TestDialOptions(t *testing.T) {
	_, err := dialOptions(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := dialOptions(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 20, DB: 5})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB, "database from the url wins")
	assert.Equal(t, 20, opts.PoolSize)
}

func TestZeroClientReportsNotConnected(t *testing.T) {
	var client Client
	_, err := client.SetNX(context.Background(), "k", "v", time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, client.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "qc:idempotency:scope:id", (&Client{}).IdempotencyKey("scope", "id"))
	assert.Equal(t, "qc:idempotency:scope", (&Client{}).IdempotencyKey("scope", " "))
	assert.Equal(t, "qc", Key())
}
