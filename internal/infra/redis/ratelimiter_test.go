package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisRateLimiterAllowWithinWindow(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniRedis(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(rdb, 2, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		allowed, err := limiter.Allow(ctx, "smtp")
		if err != nil {
			t.Fatalf("Allow() call %d error = %v", i, err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "smtp")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third send in the same second should be rejected")
	}

	now = now.Add(time.Second)
	allowed, err = limiter.Allow(ctx, "SMTP ")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("next second should allow sends again")
	}
}

func TestRedisRateLimiterScopesAreIndependent(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestMiniRedis(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	ctx := context.Background()
	if allowed, _ := limiter.Allow(ctx, "smtp"); !allowed {
		t.Fatal("smtp should be allowed on first send")
	}
	if allowed, _ := limiter.Allow(ctx, "resend"); !allowed {
		t.Fatal("resend should be allowed on first send")
	}
	if allowed, _ := limiter.Allow(ctx, "smtp"); allowed {
		t.Fatal("second smtp send should be rejected")
	}

	if !mr.Exists("sendlimit:smtp:1700000100") {
		t.Fatal("expected per-second window key for smtp")
	}
}

func TestRedisRateLimiterRejectsEmptyScope(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniRedis(t)
	limiter, err := NewRedisRateLimiter(rdb, 5)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty scope")
	}
}

func TestRedisRateLimiterWait(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniRedis(t)

	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	limiter, err := newRedisRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if allowed, _ := limiter.Allow(context.Background(), "smtp"); !allowed {
		t.Fatal("expected first send to be allowed")
	}

	if err := limiter.Wait(context.Background(), "smtp"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if sleepCalls == 0 {
		t.Fatal("expected Wait() to sleep at least once")
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniRedis(t)

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if allowed, _ := limiter.Allow(context.Background(), "smtp"); !allowed {
		t.Fatal("expected first send to be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "smtp")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestNewRedisRateLimiterRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 10); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestNewRedisRateLimiterRejectsNonPositiveLimit(t *testing.T) {
	t.Parallel()

	_, rdb := newTestMiniRedis(t)
	if _, err := NewRedisRateLimiter(rdb, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestUntilNextWindow(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_400, 0)
	tests := []struct {
		name string
		at   time.Time
		want time.Duration
	}{
		{name: "start of window", at: base, want: time.Second},
		{name: "mid window", at: base.Add(300 * time.Millisecond), want: 700 * time.Millisecond},
		{name: "end of window is floored", at: base.Add(999 * time.Millisecond), want: minWindowWait},
	}

	for _, tt := range tests {
		if got := untilNextWindow(tt.at); got != tt.want {
			t.Fatalf("%s: untilNextWindow() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
