package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t)

	release, err := l.Acquire(ctx, MallKey(1), time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(MallKey(1)))
	assert.Equal(t, time.Minute, mr.TTL(MallKey(1)))

	_, err = l.Acquire(ctx, MallKey(1), time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, MallKey(2), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(MallKey(1)))

	again, err := l.Acquire(ctx, MallKey(1), time.Minute)
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewLock(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t)
	key := MallKey(7)

	stale, err := l.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	// 旧持有者超时，锁被新的运行拿走
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(key))

	fresh, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	// 旧持有者释放不能删掉新锁
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists(key))
	_, err = l.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_ReleaseTwice(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedisLocker(t)

	release, err := l.Acquire(ctx, MallKey(3), time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	assert.NoError(t, release(ctx))
}

func TestRedisLocker_ServerDown(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	mr.Close()

	_, err := l.Acquire(context.Background(), MallKey(1), time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
