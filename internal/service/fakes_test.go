package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/mailtrack/internal/domain"
	"github.com/kursadbilgin/mailtrack/internal/provider"
	"github.com/kursadbilgin/mailtrack/internal/queue"
)

type fakeTrackingStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	sets   int

	setErr  error
	getErr  error
	keysErr error
	pingErr error
}

func newFakeTrackingStore() *fakeTrackingStore {
	return &fakeTrackingStore{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeTrackingStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	f.ttls[key] = ttl
	f.sets++
	return nil
}

func (f *fakeTrackingStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

func (f *fakeTrackingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	keys := make([]string, 0, len(f.values))
	for key := range f.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeTrackingStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeTrackingStore) put(key string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *fakeTrackingStore) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	return value, ok
}

func (f *fakeTrackingStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type fakeOpenPublisher struct {
	mu        sync.Mutex
	events    []queue.OpenEvent
	publishFn func(ctx context.Context, event queue.OpenEvent) error
}

func (f *fakeOpenPublisher) PublishOpen(ctx context.Context, event queue.OpenEvent) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, event)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOpenPublisher) Close() error { return nil }

func (f *fakeOpenPublisher) published() []queue.OpenEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.OpenEvent(nil), f.events...)
}

type fakeProvider struct {
	mu     sync.Mutex
	sent   []provider.Message
	sendFn func(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Send(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200, MessageID: "msg-" + msg.To}, nil
}

func (f *fakeProvider) sentTo(email string) []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []provider.Message
	for _, msg := range f.sent {
		if msg.To == email {
			out = append(out, msg)
		}
	}
	return out
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, scope string) (bool, error)
	waitFn  func(ctx context.Context, scope string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, scope)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

type fakeDispatchRepo struct {
	mu        sync.Mutex
	created   []*domain.Dispatch
	createFn  func(ctx context.Context, d *domain.Dispatch) error
	getByIDFn func(ctx context.Context, id string) (*domain.Dispatch, error)
}

func (f *fakeDispatchRepo) Create(ctx context.Context, d *domain.Dispatch) error {
	if f.createFn != nil {
		return f.createFn(ctx, d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDispatchRepo) GetByID(ctx context.Context, id string) (*domain.Dispatch, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

type fakeRenderer struct {
	renderFn func(template string, params map[string]string, pixel string) (string, error)
}

func (f *fakeRenderer) Render(template string, params map[string]string, pixel string) (string, error) {
	return f.renderFn(template, params, pixel)
}
