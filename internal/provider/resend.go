package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	resendProviderName   = "resend"
	defaultResendTimeout = 10 * time.Second
	resendEmailsPath     = "/emails"
)

type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

// ResendProvider sends messages through a Resend-compatible HTTP API.
type ResendProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewResendProvider(baseURL string, apiKey string) (*ResendProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultResendTimeout)
	client.SetRetryCount(0)

	return NewResendProviderWithClient(baseURL, apiKey, client)
}

func NewResendProviderWithClient(baseURL string, apiKey string, client *resty.Client) (*ResendProvider, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("resend api url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid resend api url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultResendTimeout)
	}
	client.SetRetryCount(0)

	return &ResendProvider{
		client:   client,
		endpoint: trimmedURL + resendEmailsPath,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

func (p *ResendProvider) Name() string { return resendProviderName }

func (p *ResendProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var result resendEmailResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(resendEmailRequest{
			From:    msg.From,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTMLBody,
		}).
		SetResult(&result).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Provider:  resendProviderName,
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Provider:  resendProviderName,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			MessageID:  strings.TrimSpace(result.ID),
		}, nil
	}

	return nil, &ProviderError{
		Provider:   resendProviderName,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
