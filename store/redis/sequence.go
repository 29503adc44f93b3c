// Package redis implements sequence.Store on Redis. Counters live in
// plain string keys so INCR stays atomic across every engine process
// sharing the instance; documents themselves stay in a grove store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
)

var _ sequence.Store = (*SequenceStore)(nil)

// incrExisting increments KEYS[1] only when it exists; a missing key
// returns nil so the caller can bootstrap it from the census.
var incrExisting = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
local v = redis.call("INCR", KEYS[1])
if tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return v
`)

// createOrIncr seeds KEYS[1] with ARGV[1] when absent and increments it.
var createOrIncr = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "NX")
local v = redis.call("INCR", KEYS[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return v
`)

// SequenceStore keeps per-day document counters in Redis.
type SequenceStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a SequenceStore.
type Option func(*SequenceStore)

// WithKeyPrefix sets the namespace for counter keys. Defaults to
// "revenue:seq:".
func WithKeyPrefix(p string) Option {
	return func(s *SequenceStore) { s.prefix = p }
}

// WithRetention expires a counter d after its last allocation. Zero keeps
// counters forever. Retention must outlive the counter's day or a late
// allocation re-bootstraps from the census.
func WithRetention(d time.Duration) Option {
	return func(s *SequenceStore) { s.ttl = d }
}

// NewSequenceStore wraps an existing go-redis client.
func NewSequenceStore(rdb redis.UniversalClient, opts ...Option) *SequenceStore {
	s := &SequenceStore{rdb: rdb, prefix: "revenue:seq:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SequenceStore) IncrementSequence(ctx context.Context, key sequence.Key) (int64, error) {
	v, err := incrExisting.Run(ctx, s.rdb, []string{s.redisKey(key)}, s.ttl.Milliseconds()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, types.NotFound("sequence " + key.String())
	}
	if err != nil {
		return 0, fmt.Errorf("revenue/redis: increment sequence: %w", err)
	}
	return v, nil
}

func (s *SequenceStore) CreateSequence(ctx context.Context, key sequence.Key, seed int64) (int64, error) {
	v, err := createOrIncr.Run(ctx, s.rdb, []string{s.redisKey(key)}, seed, s.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("revenue/redis: create sequence: %w", err)
	}
	return v, nil
}

func (s *SequenceStore) PeekSequence(ctx context.Context, key sequence.Key) (int64, error) {
	v, err := s.rdb.Get(ctx, s.redisKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("revenue/redis: peek sequence: %w", err)
	}
	return v, nil
}

// Ping checks Redis connectivity.
func (s *SequenceStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *SequenceStore) redisKey(key sequence.Key) string {
	return s.prefix + key.String()
}
