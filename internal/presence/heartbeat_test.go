package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisHeartbeats(t *testing.T) (*RedisHeartbeats, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisHeartbeats(client), mr
}

func TestRedisHeartbeats_BeatExpires(t *testing.T) {
	hb, mr := newRedisHeartbeats(t)
	ctx := context.Background()

	require.NoError(t, hb.Beat(ctx, 7, "room-1", 2*time.Minute))

	assert.Equal(t, "room-1", mustGet(t, mr, "presence:7"))
	alive, err := hb.Alive(ctx, 7)
	require.NoError(t, err)
	assert.True(t, alive)

	mr.FastForward(3 * time.Minute)

	alive, err = hb.Alive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestRedisHeartbeats_AliveMany(t *testing.T) {
	hb, _ := newRedisHeartbeats(t)
	ctx := context.Background()
	require.NoError(t, hb.Beat(ctx, 1, "r", time.Minute))
	require.NoError(t, hb.Beat(ctx, 3, "r", time.Minute))

	alive, err := hb.AliveMany(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 2: false, 3: true}, alive)

	empty, err := hb.AliveMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisHeartbeats_Clear(t *testing.T) {
	hb, mr := newRedisHeartbeats(t)
	ctx := context.Background()
	require.NoError(t, hb.Beat(ctx, 7, "r", time.Minute))

	require.NoError(t, hb.Clear(ctx, 7))
	assert.False(t, mr.Exists("presence:7"))
	require.NoError(t, hb.Clear(ctx, 7), "clearing twice is fine")
}

func TestRedisHeartbeats_Ping(t *testing.T) {
	hb, _ := newRedisHeartbeats(t)
	require.NoError(t, hb.Ping(context.Background()))
}

func TestRedisHeartbeats_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	hb := NewRedisHeartbeats(client)
	t.Cleanup(func() { hb.Close() })
	ctx := context.Background()

	assert.Error(t, hb.Ping(ctx))
	_, err := hb.Alive(ctx, 1)
	assert.Error(t, err)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestMemoryHeartbeats(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	hb := NewMemoryHeartbeats()
	hb.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, hb.Beat(ctx, 7, "r", time.Minute))
	alive, _ := hb.Alive(ctx, 7)
	assert.True(t, alive)

	now = now.Add(time.Minute)
	alive, _ = hb.Alive(ctx, 7)
	assert.False(t, alive, "a beat is dead exactly at its expiry")

	require.NoError(t, hb.Beat(ctx, 8, "r", time.Minute))
	many, _ := hb.AliveMany(ctx, []int64{7, 8})
	assert.Equal(t, map[int64]bool{7: false, 8: true}, many)

	require.NoError(t, hb.Clear(ctx, 8))
	alive, _ = hb.Alive(ctx, 8)
	assert.False(t, alive)
}
