package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mailtrack/internal/domain"
	"github.com/kursadbilgin/mailtrack/internal/observability"
	"github.com/kursadbilgin/mailtrack/internal/provider"
	"github.com/kursadbilgin/mailtrack/internal/ratelimit"
	"github.com/kursadbilgin/mailtrack/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendConcurrency = 8
	defaultTrackingScheme  = "http"

	pixelMarkupFormat = `<img src="%s/email/pixel/%s" width="1" height="1" style="display:none" alt="" />`
)

// Failure stages reported on the emails_failed_total metric.
const (
	stageValidation = "validation"
	stageRender     = "render"
	stageRateLimit  = "rate_limit"
	stageSend       = "send"
	stageTracking   = "tracking"
)

var ErrAuditDisabled = errors.New("dispatch audit is disabled")

// Renderer produces the HTML body for one recipient.
type Renderer interface {
	Render(template string, params map[string]string, pixel string) (string, error)
}

type trackingRegistrar interface {
	Create(ctx context.Context, trackingID string, email string) error
}

type DispatchConfig struct {
	// TrackingBaseURL is the public origin pixels are served from, e.g.
	// https://t.example.com. Use NormalizeTrackingBaseURL to build it.
	TrackingBaseURL string
	Concurrency     int
}

// DispatchService sends one templated email per recipient and registers a
// tracking record for each tracked recipient the provider accepted.
type DispatchService struct {
	provider    provider.Provider
	renderer    Renderer
	tracker     trackingRegistrar
	rateLimiter ratelimit.RateLimiter
	dispatches  repository.DispatchRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	baseURL     string
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewDispatchService(
	mailProvider provider.Provider,
	renderer Renderer,
	tracker trackingRegistrar,
	cfg DispatchConfig,
	logger *zap.Logger,
) (*DispatchService, error) {
	if mailProvider == nil {
		return nil, fmt.Errorf("mail provider is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracking registrar is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.TrackingBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("tracking base url is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultSendConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		provider:    mailProvider,
		renderer:    renderer,
		tracker:     tracker,
		logger:      logger,
		baseURL:     baseURL,
		concurrency: cfg.Concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// SetRateLimiter throttles provider sends. A nil limiter disables throttling.
func (s *DispatchService) SetRateLimiter(limiter ratelimit.RateLimiter) {
	s.rateLimiter = limiter
}

// SetDispatchRepository enables the dispatch audit trail.
func (s *DispatchService) SetDispatchRepository(dispatches repository.DispatchRepository) {
	s.dispatches = dispatches
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// AuditEnabled reports whether dispatches are persisted.
func (s *DispatchService) AuditEnabled() bool {
	return s.dispatches != nil
}

// Send delivers req to every distinct recipient. A failing recipient never
// aborts the others; the returned error is reserved for invalid requests.
func (s *DispatchService) Send(ctx context.Context, req domain.DispatchRequest) (*domain.Dispatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	recipients := uniqueRecipients(req.Recipients)
	dispatch := &domain.Dispatch{
		ID:         s.newID(),
		From:       req.From,
		Subject:    req.Subject,
		TotalCount: len(recipients),
		Deliveries: make([]domain.Delivery, len(recipients)),
		CreatedAt:  s.now().UTC(),
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("dispatchId", dispatch.ID))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, recipient := range recipients {
		g.Go(func() error {
			dispatch.Deliveries[i] = s.deliver(ctx, logger, req, recipient)
			return nil
		})
	}
	_ = g.Wait()

	for _, delivery := range dispatch.Deliveries {
		if delivery.Status == domain.DeliveryStatusFailed {
			dispatch.FailedCount++
		}
	}

	logger.Info("dispatch completed",
		zap.Int("recipients", dispatch.TotalCount),
		zap.Int("failed", dispatch.FailedCount),
	)

	if s.dispatches != nil {
		if err := s.dispatches.Create(ctx, dispatch); err != nil {
			logger.Error("failed to store dispatch audit", zap.Error(err))
		}
	}

	return dispatch, nil
}

// GetDispatch returns a stored dispatch audit entry.
func (s *DispatchService) GetDispatch(ctx context.Context, dispatchID string) (*domain.Dispatch, error) {
	if s.dispatches == nil {
		return nil, ErrAuditDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := uuid.Parse(dispatchID); err != nil {
		return nil, fmt.Errorf("%w: invalid dispatch id %q", domain.ErrValidation, dispatchID)
	}
	return s.dispatches.GetByID(ctx, dispatchID)
}

func (s *DispatchService) deliver(
	ctx context.Context,
	logger *zap.Logger,
	req domain.DispatchRequest,
	recipient domain.Recipient,
) domain.Delivery {
	providerName := s.provider.Name()
	delivery := domain.Delivery{Email: recipient.Email, Tracked: recipient.Track}
	logger = logger.With(zap.String("recipient", recipient.Email), zap.Bool("tracked", recipient.Track))

	fail := func(stage string, err error) domain.Delivery {
		reason := err.Error()
		delivery.Status = domain.DeliveryStatusFailed
		delivery.Error = &reason
		delivery.TrackingID = nil
		s.metrics.IncEmailFailed(providerName, stage)
		logger.Warn("recipient dispatch failed",
			zap.String("stage", stage),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		return delivery
	}

	if err := domain.ValidateRecipientEmail(recipient.Email); err != nil {
		return fail(stageValidation, err)
	}

	pixel := ""
	var trackingID string
	if recipient.Track {
		trackingID = s.newID()
		pixel = s.PixelMarkup(trackingID)
	}

	body, err := s.renderer.Render(req.HTMLTemplate, req.Parameters[recipient.Email], pixel)
	if err != nil {
		return fail(stageRender, err)
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, providerName); err != nil {
			return fail(stageRateLimit, err)
		}
	}

	sendStart := s.now()
	resp, err := s.provider.Send(ctx, provider.Message{
		From:     req.From,
		To:       recipient.Email,
		Subject:  req.Subject,
		HTMLBody: body,
	})
	s.metrics.ObserveEmailSendDuration(providerName, s.now().Sub(sendStart))
	if err != nil {
		return fail(stageSend, err)
	}

	if recipient.Track {
		if err := s.tracker.Create(ctx, trackingID, recipient.Email); err != nil {
			return fail(stageTracking, err)
		}
		delivery.TrackingID = &trackingID
	}

	delivery.Status = domain.DeliveryStatusSent
	s.metrics.IncEmailSent(providerName, recipient.Track)

	fields := []zap.Field{}
	if resp != nil && resp.MessageID != "" {
		fields = append(fields, zap.String("providerMessageId", resp.MessageID))
	}
	if recipient.Track {
		fields = append(fields, zap.String("trackingId", trackingID))
	}
	logger.Debug("recipient dispatched", fields...)

	return delivery
}

// PixelMarkup returns the img tag that loads the pixel for trackingID.
func (s *DispatchService) PixelMarkup(trackingID string) string {
	return fmt.Sprintf(pixelMarkupFormat, s.baseURL, trackingID)
}

// NormalizeTrackingBaseURL turns a configured tracking domain into an origin
// with a scheme and no trailing slash. defaultScheme applies when the domain
// has none and falls back to http.
func NormalizeTrackingBaseURL(trackingDomain string, defaultScheme string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(trackingDomain), "/")
	if trimmed == "" {
		return "", fmt.Errorf("tracking domain is required")
	}

	scheme := strings.ToLower(strings.TrimSpace(defaultScheme))
	if scheme == "" {
		scheme = defaultTrackingScheme
	}
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported tracking scheme %q", defaultScheme)
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = scheme + "://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid tracking domain %q: %w", trackingDomain, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid tracking domain %q: missing host", trackingDomain)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported tracking scheme %q", parsed.Scheme)
	}

	return trimmed, nil
}

// uniqueRecipients drops repeated addresses, keeping the first occurrence.
func uniqueRecipients(recipients []domain.Recipient) []domain.Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]domain.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		if _, ok := seen[recipient.Email]; ok {
			continue
		}
		seen[recipient.Email] = struct{}{}
		out = append(out, recipient)
	}
	return out
}
