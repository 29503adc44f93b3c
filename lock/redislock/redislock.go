// Package redislock implements lock.Locker on Redis using bsm/redislock.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/revenue/lock"
)

var _ lock.Locker = (*Locker)(nil)

// Locker obtains Redis locks, retrying with linear backoff until the
// context deadline, or ttl when the context has none. A key still held
// at that point yields lock.ErrNotObtained.
type Locker struct {
	client  *redislock.Client
	backoff time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithBackoff sets the retry interval while waiting for a held lock.
func WithBackoff(d time.Duration) Option {
	return func(l *Locker) { l.backoff = d }
}

// New wraps an existing go-redis client.
func New(rdb redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:  redislock.New(rdb),
		backoff: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, lock.ErrNotObtained
	case errors.Is(err, context.DeadlineExceeded):
		// Obtain retries until a deadline, the caller's or its own ttl
		// bound, so running out of time means the key stayed held.
		return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotObtained, key, err)
	case err != nil:
		return nil, err
	}
	return lease{lk}, nil
}

type lease struct{ lk *redislock.Lock }

func (l lease) Release(ctx context.Context) error {
	err := l.lk.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return lock.ErrNotHeld
	}
	return err
}
