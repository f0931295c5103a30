package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cascade/internal/testutils"
	"github.com/aretw0/cascade/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "tree-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:tree-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:tree-1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	first := redis.NewLocker(client, "test:")
	second := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := first.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = second.Lock(short, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := second.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock2, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists("test:lock:k"), "expired holder must not release the new lock")
	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("test:lock:k"))
}

func TestRedisLocker_KeepsLockAlive(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "long", 300*time.Millisecond)
	require.NoError(t, err)

	mr.SetTTL("test:lock:long", time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("test:lock:long") == 300*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:long"))
	require.NoError(t, unlock(ctx))
}

func TestRedisLocker_KeepAliveLeavesNewOwnerAlone(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k", 300*time.Millisecond)
	require.NoError(t, err)
	defer unlock(ctx)

	require.NoError(t, mr.Set("test:lock:k", "someone-else"))
	mr.SetTTL("test:lock:k", time.Minute)
	time.Sleep(350 * time.Millisecond)

	assert.Equal(t, time.Minute, mr.TTL("test:lock:k"))
	got, err := mr.Get("test:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
