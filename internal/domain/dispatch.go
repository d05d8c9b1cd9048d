package domain

import (
	"fmt"
	"strings"
	"time"
)

// Recipient is one addressee of a dispatch.
type Recipient struct {
	Email string
	Track bool
}

// DispatchRequest is a templated send to many recipients.
type DispatchRequest struct {
	From         string
	Subject      string
	HTMLTemplate string
	Recipients   []Recipient
	// Parameters holds placeholder substitutions keyed by recipient email.
	Parameters map[string]map[string]string
}

func (r DispatchRequest) Validate() error {
	if strings.TrimSpace(r.From) == "" {
		return fmt.Errorf("%w: from is required", ErrValidation)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(r.HTMLTemplate) == "" {
		return fmt.Errorf("%w: htmlTemplate is required", ErrValidation)
	}
	if len(r.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	return nil
}

// DeliveryStatus is the per-recipient result of a dispatch.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "SENT"
	DeliveryStatusFailed DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

// Delivery records what happened to one recipient.
type Delivery struct {
	Email      string
	Tracked    bool
	TrackingID *string
	Status     DeliveryStatus
	Error      *string
}

// Outcome renders the delivery as reported by the send endpoint:
// Success:<trackingId>, Success (untracked) or Failed:<reason>.
func (d Delivery) Outcome() string {
	if d.Status == DeliveryStatusFailed {
		reason := "unknown error"
		if d.Error != nil && strings.TrimSpace(*d.Error) != "" {
			reason = *d.Error
		}
		return "Failed:" + reason
	}
	if d.TrackingID != nil {
		return "Success:" + *d.TrackingID
	}
	return "Success"
}

// Dispatch is the audit entry for one send request.
type Dispatch struct {
	ID          string
	From        string
	Subject     string
	TotalCount  int
	FailedCount int
	Deliveries  []Delivery
	CreatedAt   time.Time
}
