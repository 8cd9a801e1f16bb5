package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lncurl/lncurl/internal/clock"
)

const redisKeyPrefix = "rl:create:"

// Redis keeps each origin's window in a sorted set scored by attempt time in
// milliseconds, so the quota survives restarts and is shared between
// processes.
type Redis struct {
	client *redis.Client
	clock  clock.Clock
	limit  int
	window time.Duration
}

// NewRedis builds a Redis-backed limiter with the same defaults as NewWindow.
func NewRedis(client *redis.Client, clk clock.Clock, limit int, window time.Duration) *Redis {
	if clk == nil {
		clk = clock.New()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, clock: clk, limit: limit, window: window}
}

// slideWindow trims, counts and conditionally records in one atomic step so
// concurrent attempts from the same origin cannot all see room under the
// quota.
//
//	KEYS[1] window key
//	ARGV    cutoff ms, now ms, limit, member, window ms
//
// It returns {allowed, count after this attempt}.
var slideWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return {0, count}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count + 1}
`)

// Check trims expired attempts, counts the rest and records this attempt when
// the count is under quota.
func (r *Redis) Check(ctx context.Context, key string) (Result, error) {
	now := r.clock.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	reply, err := slideWindow.Run(ctx, r.client, []string{redisKeyPrefix + key},
		now.Add(-r.window).UnixMilli(),
		now.UnixMilli(),
		r.limit,
		member,
		r.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("slide window: %w", err)
	}
	if len(reply) != 2 {
		return Result{}, fmt.Errorf("slide window: unexpected reply %v", reply)
	}
	if reply[0] == 0 {
		return Result{Allowed: false, Remaining: 0}, nil
	}
	return Result{Allowed: true, Remaining: max(r.limit-int(reply[1]), 0)}, nil
}
