package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncEmailSent("SMTP", true)
	metrics.IncEmailSent("smtp", false)
	metrics.IncEmailFailed("smtp", "send")
	metrics.ObserveEmailSendDuration("smtp", 120*time.Millisecond)
	metrics.IncTrackingCreated()

	if got := testutil.ToFloat64(metrics.emailsSentTotal.WithLabelValues("smtp", "true")); got != 1 {
		t.Fatalf("emails_sent_total{tracked=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.emailsSentTotal.WithLabelValues("smtp", "false")); got != 1 {
		t.Fatalf("emails_sent_total{tracked=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.emailsFailedTotal.WithLabelValues("smtp", "send")); got != 1 {
		t.Fatalf("emails_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.trackingCreatedTotal); got != 1 {
		t.Fatalf("tracking_records_created_total = %v, want 1", got)
	}
}

func TestMetricsPixelCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncPixelFetch("recorded")
	metrics.IncPixelFetch("recorded")
	metrics.IncPixelFetch("")
	metrics.IncOpenEventPublishFailed()
	metrics.IncOpenEventDropped()
	metrics.IncOpenEventDropped()

	if got := testutil.ToFloat64(metrics.pixelFetchesTotal.WithLabelValues("recorded")); got != 2 {
		t.Fatalf("pixel_fetches_total{recorded} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.pixelFetchesTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("pixel_fetches_total{unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.openEventsFailedTotal); got != 1 {
		t.Fatalf("open_events_publish_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.openEventsDroppedTotal); got != 2 {
		t.Fatalf("open_events_dropped_total = %v, want 2", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncEmailSent("smtp", true)
	metrics.IncPixelFetch("recorded")
	metrics.IncTrackingCreated()
	metrics.IncOpenEventDropped()
	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/email/pixel/:trackingId", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/email/pixel/0b5a2a4e-4b1c-4df5-9e57-3b9d5d0f7c11", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/email/pixel/:trackingId", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
