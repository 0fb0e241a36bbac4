package ratelimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces shared window keys. The scope (usually the organization URL) is appended.
const RedisKeyPrefix = "azdo:rate_limit:window:"

// admitScript prunes expired entries, counts the rest and adds the new entry only
// if it fits, all in one step, so concurrent processes cannot overshoot max.
//
// KEYS[1] window key; ARGV: now (unix micros), size (micros), max, member, ttl (ms).
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - tonumber(ARGV[2]))
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// SharedWindow keeps the sliding window log in a Redis sorted set (score = unix micros)
// so the MCP server, the proxy and any other local process draw on one budget.
//
// CanExecute reserves the slot in Redis when it admits; the following
// RecordExecution consumes that reservation instead of adding a second entry.
// Redis failures never block admission: the call is answered from an in-process
// Window that mirrors every recorded execution.
type SharedWindow struct {
	redis    *redis.Client
	key      string
	max      int
	size     time.Duration
	clock    Clock
	fallback *Window
	logger   zerolog.Logger

	// reserved counts admissions already written to Redis and not yet recorded.
	reserved atomic.Int64
}

// NewSharedWindow creates a Redis-backed window for the given scope.
func NewSharedWindow(redisClient *redis.Client, scope string, max int, size time.Duration, logger zerolog.Logger) *SharedWindow {
	fallback := NewWindow(max, size, nil)
	return &SharedWindow{
		redis:    redisClient,
		key:      RedisKeyPrefix + scope,
		max:      fallback.Max(),
		size:     fallback.Size(),
		clock:    SystemClock,
		fallback: fallback,
		logger:   logger,
	}
}

// Key returns the Redis key holding the window.
func (s *SharedWindow) Key() string { return s.key }

// CanExecute implements Limiter. A true result has already taken the slot.
func (s *SharedWindow) CanExecute(ctx context.Context) bool {
	now := s.clock.Now()

	admitted, err := admitScript.Run(ctx, s.redis, []string{s.key},
		now.UnixMicro(),
		s.size.Microseconds(),
		s.max,
		uuid.NewString(),
		(2 * s.size).Milliseconds(),
	).Int()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Shared rate window unavailable, using local window")
		return s.fallback.CanExecute(ctx)
	}

	if admitted == 1 {
		s.reserved.Add(1)
		return true
	}
	return false
}

// RecordExecution implements Limiter. It consumes a reservation taken by
// CanExecute; without one the execution is added to the shared window directly.
func (s *SharedWindow) RecordExecution(ctx context.Context) {
	s.fallback.RecordExecution(ctx)

	if s.consumeReservation() {
		return
	}

	now := s.clock.Now()
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(now.UnixMicro()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, s.key, 2*s.size)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Failed to record execution in shared rate window")
	}
}

func (s *SharedWindow) consumeReservation() bool {
	for {
		n := s.reserved.Load()
		if n <= 0 {
			return false
		}
		if s.reserved.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// TimeUntilNextSlot implements Limiter.
func (s *SharedWindow) TimeUntilNextSlot(ctx context.Context) time.Duration {
	now := s.clock.Now()

	pipe := s.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.key, "-inf", s.score(now.Add(-s.size)))
	// With n >= max members, index -max is the entry whose expiry frees the next slot.
	edge := pipe.ZRangeWithScores(ctx, s.key, int64(-s.max), int64(-s.max))
	card := pipe.ZCard(ctx, s.key)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Shared rate window unavailable, using local window")
		return s.fallback.TimeUntilNextSlot(ctx)
	}

	if card.Val() < int64(s.max) || len(edge.Val()) == 0 {
		return 0
	}

	oldest := time.UnixMicro(int64(edge.Val()[0].Score))
	wait := oldest.Add(s.size).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *SharedWindow) score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
