package ratelimit

import "context"

// RateLimiter throttles outbound mail per sending scope, e.g. the provider name.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
