package store

import (
	"context"
	"time"
)

// TrackingStore is a TTL-bounded key-value store for tracking records.
//
// Get returns domain.ErrNotFound when the key is absent or expired. Any
// connectivity failure is reported wrapped in domain.ErrStoreUnavailable.
// There is no compare-and-swap: Set always overwrites and refreshes the TTL.
type TrackingStore interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Keys lists keys starting with prefix. Diagnostic use only.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}
