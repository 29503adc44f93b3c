package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue"
	"github.com/xraph/revenue/lock"
	"github.com/xraph/revenue/lock/redislock"
)

func newLocker(t *testing.T) *redislock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redislock.New(rdb, redislock.WithBackoff(5*time.Millisecond))
}

func TestObtainAndRelease(t *testing.T) {
	l := newLocker(t)
	ctx := context.Background()
	key := lock.Key("bill", "bill_01")

	lease, err := l.Obtain(ctx, key, time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(short, key, time.Second)
	assert.ErrorIs(t, err, lock.ErrNotObtained)

	require.NoError(t, lease.Release(ctx))

	again, err := l.Obtain(ctx, key, time.Second)
	require.NoError(t, err)
	assert.NoError(t, again.Release(ctx))
}

func TestReleaseTwice(t *testing.T) {
	l := newLocker(t)
	ctx := context.Background()

	lease, err := l.Obtain(ctx, lock.Key("anomaly", "anom_01"), time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), lock.ErrNotHeld)
}

func TestContendedWithoutDeadlineIsRetryable(t *testing.T) {
	l := newLocker(t)
	ctx := context.Background()
	key := lock.Key("bill", "bill_02")

	held, err := l.Obtain(ctx, key, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	started := time.Now()
	_, err = l.Obtain(ctx, key, 60*time.Millisecond)
	assert.ErrorIs(t, err, lock.ErrNotObtained)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, revenue.IsRetryable(err))
	assert.Less(t, time.Since(started), time.Second)
}

func TestCancelledCallerIsNotContention(t *testing.T) {
	l := newLocker(t)
	key := lock.Key("bill", "bill_03")

	held, err := l.Obtain(context.Background(), key, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Obtain(ctx, key, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrNotObtained)
}
