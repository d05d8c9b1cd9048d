package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/mailtrack/internal/domain"
	"github.com/kursadbilgin/mailtrack/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

const scanBatchSize = 500

var _ store.TrackingStore = (*TrackingStore)(nil)

// TrackingStore keeps tracking records as plain Redis strings with expiry.
type TrackingStore struct {
	client *goredis.Client
}

func NewTrackingStore(client *goredis.Client) (*TrackingStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &TrackingStore{client: client}, nil
}

func (s *TrackingStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *TrackingStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return value, nil
}

// Keys walks the keyspace with SCAN rather than KEYS so large keyspaces do
// not block the server.
func (s *TrackingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s*: %v", domain.ErrStoreUnavailable, prefix, err)
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *TrackingStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func escapeGlob(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(pattern)
}
