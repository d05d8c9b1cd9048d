package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mailtrack/internal/domain"
	"github.com/kursadbilgin/mailtrack/internal/observability"
	"github.com/kursadbilgin/mailtrack/internal/queue"
	"github.com/kursadbilgin/mailtrack/internal/store"
	"go.uber.org/zap"
)

const (
	storeCheckKeyPrefix = "storecheck:"
	storeCheckTTL       = time.Minute

	defaultOpenEventBuffer         = 1024
	defaultOpenEventPublishTimeout = 2 * time.Second
)

// IncrementOutcome reports what an Increment call did to the stored record.
type IncrementOutcome string

const (
	OutcomeRecorded  IncrementOutcome = "recorded"
	OutcomeUnknown   IncrementOutcome = "unknown"
	OutcomeMalformed IncrementOutcome = "malformed"
	OutcomeRepaired  IncrementOutcome = "repaired"
)

func (o IncrementOutcome) String() string { return string(o) }

// Inspection is the raw view of one tracking record for diagnostics.
type Inspection struct {
	TrackingID   string
	StoreKey     string
	Data         *string
	TrackingKeys []string
}

// StoreCheck is the result of a store write-then-read probe.
type StoreCheck struct {
	Key       string
	Written   string
	Read      string
	RoundTrip time.Duration
}

// TrackingService owns the open-count lifecycle of tracking records.
//
// Increment is a read-modify-write without compare-and-swap: two concurrent
// fetches of the same pixel may both read count n and both write n+1.
//
// Open events never run on the caller's goroutine. They are queued to a
// bounded buffer drained by one background publisher, and dropped when the
// buffer is full.
type TrackingService struct {
	store   store.TrackingStore
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	eventBuffer    int
	publishTimeout time.Duration

	eventsMu   sync.RWMutex
	events     chan queue.OpenEvent
	eventsDone chan struct{}
}

func NewTrackingService(trackingStore store.TrackingStore, logger *zap.Logger) (*TrackingService, error) {
	if trackingStore == nil {
		return nil, fmt.Errorf("tracking store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TrackingService{
		store:          trackingStore,
		logger:         logger,
		now:            time.Now,
		eventBuffer:    defaultOpenEventBuffer,
		publishTimeout: defaultOpenEventPublishTimeout,
	}, nil
}

// SetPublisher enables open events and starts the background publisher.
// It must be called at most once, before the service handles traffic.
func (s *TrackingService) SetPublisher(publisher queue.Publisher) {
	if publisher == nil {
		return
	}

	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events != nil {
		return
	}

	s.events = make(chan queue.OpenEvent, max(s.eventBuffer, 1))
	s.eventsDone = make(chan struct{})
	go s.runPublisher(publisher, s.events, s.eventsDone)
}

// Close stops accepting open events and waits for the queued ones to be
// published, or for ctx to end.
func (s *TrackingService) Close(ctx context.Context) error {
	s.eventsMu.Lock()
	events, done := s.events, s.eventsDone
	s.events = nil
	s.eventsMu.Unlock()

	if events == nil {
		return nil
	}
	close(events)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("open events still pending at shutdown: %w", ctx.Err())
	}
}

func (s *TrackingService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Create registers a fresh record with zero opens for trackingID.
func (s *TrackingService) Create(ctx context.Context, trackingID string, email string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateTrackingID(trackingID); err != nil {
		return err
	}
	if err := domain.ValidateRecipientEmail(email); err != nil {
		return err
	}

	record := domain.NewTrackingRecord(trackingID, email, s.now())
	if err := s.store.Set(ctx, domain.TrackingKey(trackingID), domain.EncodeRecord(record), domain.TrackingTTL); err != nil {
		return err
	}

	s.metrics.IncTrackingCreated()
	return nil
}

// Increment records one open. Unknown ids and malformed records are left
// untouched and reported through the outcome, not as errors.
func (s *TrackingService) Increment(ctx context.Context, trackingID string) (IncrementOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("trackingId", trackingID))

	key := domain.TrackingKey(trackingID)
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return OutcomeUnknown, nil
	}
	if err != nil {
		return "", err
	}

	outcome := OutcomeRecorded
	record, err := domain.DecodeRecord(trackingID, raw)
	switch {
	case errors.Is(err, domain.ErrInvalidCount):
		logger.Warn("tracking record has invalid open count, resetting to 1", zap.Error(err))
		record.OpenCount = 1
		outcome = OutcomeRepaired
	case err != nil:
		logger.Warn("tracking record is malformed, skipping increment", zap.Error(err))
		return OutcomeMalformed, nil
	default:
		if record.OpenCount < math.MaxInt {
			record.OpenCount++
		}
	}
	record.LastOpenedAt = s.now().UTC()

	if err := s.store.Set(ctx, key, domain.EncodeRecord(record), domain.TrackingTTL); err != nil {
		return "", err
	}

	s.enqueueOpen(ctx, logger, record, outcome == OutcomeRepaired)
	return outcome, nil
}

// Read returns the current record. A corrupt open count is reported as 0.
func (s *TrackingService) Read(ctx context.Context, trackingID string) (*domain.TrackingRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := s.store.Get(ctx, domain.TrackingKey(trackingID))
	if err != nil {
		return nil, err
	}

	record, err := domain.DecodeRecord(trackingID, raw)
	if errors.Is(err, domain.ErrInvalidCount) {
		observability.WithContextLogger(s.logger, ctx).Warn("tracking record has invalid open count, reporting 0",
			zap.String("trackingId", trackingID),
			zap.Error(err),
		)
		record.OpenCount = 0
		return &record, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Inspect returns the raw stored value for trackingID together with every
// tracking key currently in the store.
func (s *TrackingService) Inspect(ctx context.Context, trackingID string) (*Inspection, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	key := domain.TrackingKey(trackingID)
	inspection := &Inspection{TrackingID: trackingID, StoreKey: key}

	raw, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		inspection.Data = &raw
	}

	keys, err := s.store.Keys(ctx, domain.TrackingKeyPrefix)
	if err != nil {
		return nil, err
	}
	inspection.TrackingKeys = keys

	return inspection, nil
}

// CheckStore writes a short-lived probe key and reads it back.
func (s *TrackingService) CheckStore(ctx context.Context) (*StoreCheck, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := s.now()
	check := &StoreCheck{
		Key:     storeCheckKeyPrefix + uuid.NewString(),
		Written: start.UTC().Format(time.RFC3339Nano),
	}

	if err := s.store.Set(ctx, check.Key, check.Written, storeCheckTTL); err != nil {
		return nil, err
	}
	read, err := s.store.Get(ctx, check.Key)
	if err != nil {
		return nil, err
	}
	if read != check.Written {
		return nil, fmt.Errorf("%w: probe %s read back %q, wrote %q", domain.ErrStoreUnavailable, check.Key, read, check.Written)
	}

	check.Read = read
	check.RoundTrip = s.now().Sub(start)
	return check, nil
}

func (s *TrackingService) enqueueOpen(ctx context.Context, logger *zap.Logger, record domain.TrackingRecord, repaired bool) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if s.events == nil {
		return
	}

	requestID, _ := observability.RequestIDFromContext(ctx)
	event := queue.OpenEvent{
		TrackingID: record.TrackingID,
		Email:      record.Email,
		OpenCount:  record.OpenCount,
		Repaired:   repaired,
		OpenedAt:   record.LastOpenedAt,
		RequestID:  requestID,
	}

	select {
	case s.events <- event:
	default:
		s.metrics.IncOpenEventDropped()
		logger.Warn("open event buffer full, dropping event", zap.Int("openCount", record.OpenCount))
	}
}

func (s *TrackingService) runPublisher(publisher queue.Publisher, events <-chan queue.OpenEvent, done chan<- struct{}) {
	defer close(done)

	for event := range events {
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		err := publisher.PublishOpen(ctx, event)
		cancel()

		if err != nil {
			s.metrics.IncOpenEventPublishFailed()
			s.logger.Warn("failed to publish open event",
				zap.String("trackingId", event.TrackingID),
				zap.String("requestId", event.RequestID),
				zap.Error(err),
			)
		}
	}
}

func validateTrackingID(trackingID string) error {
	if _, err := uuid.Parse(trackingID); err != nil {
		return fmt.Errorf("%w: invalid tracking id %q", domain.ErrValidation, trackingID)
	}
	return nil
}
