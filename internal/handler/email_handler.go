package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mailtrack/internal/domain"
	"github.com/kursadbilgin/mailtrack/internal/service"
)

const trackingNotFoundMessage = "Tracking ID not found"

type Dispatcher interface {
	Send(ctx context.Context, req domain.DispatchRequest) (*domain.Dispatch, error)
	GetDispatch(ctx context.Context, dispatchID string) (*domain.Dispatch, error)
	AuditEnabled() bool
}

type TrackingReader interface {
	Read(ctx context.Context, trackingID string) (*domain.TrackingRecord, error)
	Inspect(ctx context.Context, trackingID string) (*service.Inspection, error)
	CheckStore(ctx context.Context) (*service.StoreCheck, error)
}

type PixelServer interface {
	Serve(ctx context.Context, trackingID string) []byte
}

type EmailHandler struct {
	dispatcher Dispatcher
	tracking   TrackingReader
	pixels     PixelServer
}

func NewEmailHandler(dispatcher Dispatcher, tracking TrackingReader, pixels PixelServer) (*EmailHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if tracking == nil {
		return nil, fmt.Errorf("tracking reader is required")
	}
	if pixels == nil {
		return nil, fmt.Errorf("pixel server is required")
	}
	return &EmailHandler{dispatcher: dispatcher, tracking: tracking, pixels: pixels}, nil
}

func RegisterEmailRoutes(router fiber.Router, dispatcher Dispatcher, tracking TrackingReader, pixels PixelServer) error {
	h, err := NewEmailHandler(dispatcher, tracking, pixels)
	if err != nil {
		return err
	}

	email := router.Group("/email")
	email.Post("/send", h.SendEmail)
	email.Get("/pixel/:trackingId", h.ServePixel)
	email.Get("/status/:trackingId", h.GetStatus)
	email.Get("/debug/:trackingId", h.DebugTracking)
	email.Get("/store-check", h.CheckStore)
	email.Get("/ping", h.Ping)
	// Legacy diagnostic paths kept for existing operator tooling.
	email.Get("/debug-tracking/:trackingId", h.DebugTracking)
	email.Get("/redis-test", h.CheckStore)
	if dispatcher.AuditEnabled() {
		email.Get("/dispatches/:dispatchId", h.GetDispatch)
	}

	return nil
}

type sendEmailRequest struct {
	Recipients struct {
		From      string          `json:"from"`
		Receivers []receiverInput `json:"receivers"`
	} `json:"recipients"`
	EmailBody struct {
		Subject      string                       `json:"subject"`
		HTMLTemplate string                       `json:"htmlTemplate"`
		Parameters   map[string]map[string]string `json:"parameters"`
	} `json:"emailBody"`
}

type receiverInput struct {
	Email       string `json:"email"`
	WantToTrack bool   `json:"wantToTrack"`
}

type sendEmailResponse struct {
	DispatchID string            `json:"dispatchId"`
	Status     map[string]string `json:"status"`
}

type trackingStatusResponse struct {
	TrackingID   string    `json:"trackingId"`
	Email        string    `json:"email"`
	Count        int       `json:"count"`
	CreatedAt    time.Time `json:"createdAt"`
	LastOpenedAt time.Time `json:"lastOpenedAt"`
}

type debugTrackingResponse struct {
	TrackingID   string   `json:"trackingId"`
	StoreKey     string   `json:"storeKey"`
	Data         *string  `json:"data"`
	TrackingKeys []string `json:"trackingKeys"`
}

type storeCheckResponse struct {
	Status      string  `json:"status"`
	Key         string  `json:"key"`
	Written     string  `json:"written"`
	Read        string  `json:"read"`
	RoundTripMs float64 `json:"roundTripMs"`
}

type dispatchResponse struct {
	DispatchID  string             `json:"dispatchId"`
	From        string             `json:"from"`
	Subject     string             `json:"subject"`
	TotalCount  int                `json:"totalCount"`
	FailedCount int                `json:"failedCount"`
	CreatedAt   time.Time          `json:"createdAt"`
	Deliveries  []deliveryResponse `json:"deliveries"`
}

type deliveryResponse struct {
	Email      string  `json:"email"`
	Tracked    bool    `json:"tracked"`
	TrackingID *string `json:"trackingId,omitempty"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	Outcome    string  `json:"outcome"`
}

func (h *EmailHandler) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dispatch, err := h.dispatcher.Send(c.UserContext(), requestToDispatchRequest(req))
	if err != nil {
		return toHTTPError(err)
	}

	status := make(map[string]string, len(dispatch.Deliveries))
	for _, delivery := range dispatch.Deliveries {
		status[delivery.Email] = delivery.Outcome()
	}

	return c.Status(fiber.StatusOK).JSON(sendEmailResponse{
		DispatchID: dispatch.ID,
		Status:     status,
	})
}

// ServePixel always answers 200 with the image, whatever happened to the
// open count.
func (h *EmailHandler) ServePixel(c *fiber.Ctx) error {
	body := h.pixels.Serve(c.UserContext(), strings.TrimSpace(c.Params("trackingId")))

	c.Set(fiber.HeaderContentType, service.PixelContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	return c.Status(fiber.StatusOK).Send(body)
}

func (h *EmailHandler) GetStatus(c *fiber.Ctx) error {
	trackingID := strings.TrimSpace(c.Params("trackingId"))
	record, err := h.tracking.Read(c.UserContext(), trackingID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, trackingNotFoundMessage)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return fmt.Errorf("Error retrieving tracking status: %w", err)
	}

	return c.Status(fiber.StatusOK).JSON(trackingStatusResponse{
		TrackingID:   trackingID,
		Email:        record.Email,
		Count:        record.OpenCount,
		CreatedAt:    record.CreatedAt,
		LastOpenedAt: record.LastOpenedAt,
	})
}

func (h *EmailHandler) DebugTracking(c *fiber.Ctx) error {
	inspection, err := h.tracking.Inspect(c.UserContext(), strings.TrimSpace(c.Params("trackingId")))
	if err != nil {
		return toHTTPError(err)
	}

	keys := inspection.TrackingKeys
	if keys == nil {
		keys = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(debugTrackingResponse{
		TrackingID:   inspection.TrackingID,
		StoreKey:     inspection.StoreKey,
		Data:         inspection.Data,
		TrackingKeys: keys,
	})
}

func (h *EmailHandler) CheckStore(c *fiber.Ctx) error {
	check, err := h.tracking.CheckStore(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(storeCheckResponse{
		Status:      "ok",
		Key:         check.Key,
		Written:     check.Written,
		Read:        check.Read,
		RoundTripMs: float64(check.RoundTrip.Microseconds()) / 1000,
	})
}

func (h *EmailHandler) Ping(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "pong"})
}

func (h *EmailHandler) GetDispatch(c *fiber.Ctx) error {
	dispatch, err := h.dispatcher.GetDispatch(c.UserContext(), strings.TrimSpace(c.Params("dispatchId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDispatchResponse(dispatch))
}

func requestToDispatchRequest(req sendEmailRequest) domain.DispatchRequest {
	recipients := make([]domain.Recipient, 0, len(req.Recipients.Receivers))
	for _, receiver := range req.Recipients.Receivers {
		recipients = append(recipients, domain.Recipient{
			Email: strings.TrimSpace(receiver.Email),
			Track: receiver.WantToTrack,
		})
	}

	return domain.DispatchRequest{
		From:         strings.TrimSpace(req.Recipients.From),
		Subject:      req.EmailBody.Subject,
		HTMLTemplate: req.EmailBody.HTMLTemplate,
		Recipients:   recipients,
		Parameters:   req.EmailBody.Parameters,
	}
}

func toDispatchResponse(d *domain.Dispatch) dispatchResponse {
	deliveries := make([]deliveryResponse, 0, len(d.Deliveries))
	for _, delivery := range d.Deliveries {
		deliveries = append(deliveries, deliveryResponse{
			Email:      delivery.Email,
			Tracked:    delivery.Tracked,
			TrackingID: delivery.TrackingID,
			Status:     delivery.Status.String(),
			Error:      delivery.Error,
			Outcome:    delivery.Outcome(),
		})
	}

	return dispatchResponse{
		DispatchID:  d.ID,
		From:        d.From,
		Subject:     d.Subject,
		TotalCount:  d.TotalCount,
		FailedCount: d.FailedCount,
		CreatedAt:   d.CreatedAt,
		Deliveries:  deliveries,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrAuditDisabled):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
