package service

import (
	"context"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mailtrack/internal/observability"
	"go.uber.org/zap"
)

// PixelContentType is the media type of the tracking pixel.
const PixelContentType = "image/png"

// 1x1 transparent PNG.
var pixelPNG = mustDecodePixel("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAAC0lEQVR42mNgAAIAAAUAAen63NgAAAAASUVORK5CYII=")

func mustDecodePixel(encoded string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		panic(err)
	}
	return decoded
}

// PixelBytes returns a copy of the tracking pixel image.
func PixelBytes() []byte {
	out := make([]byte, len(pixelPNG))
	copy(out, pixelPNG)
	return out
}

type openRecorder interface {
	Increment(ctx context.Context, trackingID string) (IncrementOutcome, error)
}

// PixelResponder serves the tracking pixel and records the open on a best
// effort basis. Serve never fails.
type PixelResponder struct {
	tracker openRecorder
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewPixelResponder(tracker openRecorder, logger *zap.Logger) *PixelResponder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PixelResponder{tracker: tracker, logger: logger}
}

func (p *PixelResponder) SetMetrics(metrics *observability.Metrics) {
	p.metrics = metrics
}

// Serve records an open for trackingID and returns the pixel image. Ids that
// are not UUIDs never reach the store.
func (p *PixelResponder) Serve(ctx context.Context, trackingID string) []byte {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := uuid.Parse(trackingID); err != nil {
		p.metrics.IncPixelFetch("invalid_id")
		return PixelBytes()
	}
	if p.tracker == nil {
		p.metrics.IncPixelFetch("error")
		return PixelBytes()
	}

	outcome, err := p.tracker.Increment(ctx, trackingID)
	if err != nil {
		p.metrics.IncPixelFetch("error")
		observability.WithContextLogger(p.logger, ctx).Error("failed to record pixel open",
			zap.String("trackingId", trackingID),
			zap.Error(err),
		)
		return PixelBytes()
	}

	p.metrics.IncPixelFetch(outcome.String())
	return PixelBytes()
}
