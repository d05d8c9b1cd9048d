package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mailtrack/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sendLimitKeyPrefix = "sendlimit"
	// Window keys outlive their second so late INCRs from skewed replicas
	// do not recreate a key without expiry.
	sendWindowTTLSeconds = 2
	minWindowWait        = 5 * time.Millisecond
)

// sendWindowScript counts a send in the window key and reports whether the
// count is still within the limit.
var sendWindowScript = goredis.NewScript(`
local sent = redis.call("INCR", KEYS[1])
if sent == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if sent > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps outbound sends per second across all API replicas.
// Every scope gets a fixed one-second window keyed by the unix second.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		return nil, fmt.Errorf("send limit must be positive, got %d", limitPerSec)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limitPerSec,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func windowKey(scope string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", sendLimitKeyPrefix, scope, at.Unix())
}

func normalizeScope(scope string) (string, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return "", fmt.Errorf("scope is required")
	}
	return scope, nil
}

// Allow reports whether one more send fits in the scope's current window.
// A rejected call still counts against that window.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	allowed, _, err := r.take(ctx, scope)
	return allowed, err
}

func (r *RedisRateLimiter) take(ctx context.Context, scope string) (bool, time.Time, error) {
	if r == nil || r.client == nil {
		return false, time.Time{}, fmt.Errorf("rate limiter is not initialized")
	}

	normalized, err := normalizeScope(scope)
	if err != nil {
		return false, time.Time{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	at := r.now().UTC()
	ok, err := sendWindowScript.Run(ctx, r.client, []string{windowKey(normalized, at)}, r.limit, sendWindowTTLSeconds).Int()
	if err != nil {
		return false, at, fmt.Errorf("failed to evaluate send limit: %w", err)
	}

	return ok == 1, at, nil
}

// Wait blocks until a send slot is free or ctx ends. A rejected attempt
// sleeps until the next window opens rather than polling inside the full one.
func (r *RedisRateLimiter) Wait(ctx context.Context, scope string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, at, err := r.take(ctx, scope)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, untilNextWindow(at)); err != nil {
			return err
		}
	}
}

func untilNextWindow(at time.Time) time.Duration {
	wait := at.Truncate(time.Second).Add(time.Second).Sub(at)
	return max(wait, minWindowWait)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
