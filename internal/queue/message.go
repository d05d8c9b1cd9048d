package queue

import (
	"fmt"
	"strings"
	"time"
)

// OpenEvent is the broker payload emitted after a pixel fetch is recorded.
type OpenEvent struct {
	TrackingID string    `json:"trackingId"`
	Email      string    `json:"email"`
	OpenCount  int       `json:"openCount"`
	Repaired   bool      `json:"repaired,omitempty"`
	OpenedAt   time.Time `json:"openedAt"`
	RequestID  string    `json:"requestId,omitempty"`
}

func (e OpenEvent) Validate() error {
	if strings.TrimSpace(e.TrackingID) == "" {
		return fmt.Errorf("trackingId is required")
	}
	if e.OpenCount < 1 {
		return fmt.Errorf("openCount must be positive, got %d", e.OpenCount)
	}
	if e.OpenedAt.IsZero() {
		return fmt.Errorf("openedAt is required")
	}
	return nil
}
