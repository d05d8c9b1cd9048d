package provider

import (
	"context"
	"fmt"
	"strings"
)

// Message is one rendered HTML email addressed to a single recipient.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("from is required")
	}
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}

// Provider is the outbound mail delivery port.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for logging and audit.
type ProviderResponse struct {
	StatusCode int
	MessageID  string
}
