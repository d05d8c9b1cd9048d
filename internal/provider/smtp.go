package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"
)

const smtpProviderName = "smtp"

// SMTP transport security modes.
const (
	SMTPSecurityTLS      = "tls"
	SMTPSecurityStartTLS = "starttls"
	SMTPSecurityNone     = "none"
)

// SMTPConfig holds mail server connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string
}

// SMTPProvider delivers messages through an SMTP relay, one connection per send.
type SMTPProvider struct {
	send func(msg *gomail.Message) error
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}

	dialer := gomail.NewDialer(host, cfg.Port, cfg.Username, cfg.Password)
	switch strings.ToLower(strings.TrimSpace(cfg.Security)) {
	case "", SMTPSecurityTLS:
		dialer.SSL = true
	case SMTPSecurityStartTLS:
		dialer.SSL = false
		dialer.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	case SMTPSecurityNone:
		dialer.SSL = false
		dialer.TLSConfig = nil
	default:
		return nil, fmt.Errorf("unsupported smtp security mode %q", cfg.Security)
	}

	return newSMTPProviderWithSender(dialer.DialAndSend)
}

func newSMTPProviderWithSender(send func(msg ...*gomail.Message) error) (*SMTPProvider, error) {
	if send == nil {
		return nil, fmt.Errorf("smtp sender is required")
	}
	return &SMTPProvider{
		send: func(msg *gomail.Message) error { return send(msg) },
	}, nil
}

func (p *SMTPProvider) Name() string { return smtpProviderName }

// Send blocks until the relay accepts the message. gomail has no context
// support, so ctx is only checked before dialing.
func (p *SMTPProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.send == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, &ProviderError{Provider: smtpProviderName, Message: "send canceled", Cause: err}
		}
	}

	if err := p.send(buildSMTPMessage(msg)); err != nil {
		return nil, classifySMTPError(err)
	}

	return &ProviderResponse{}, nil
}

func buildSMTPMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)
	return m
}

func classifySMTPError(err error) *ProviderError {
	providerErr := &ProviderError{
		Provider: smtpProviderName,
		Message:  "smtp delivery failed",
		Cause:    err,
	}

	var smtpErr *textproto.Error
	if errors.As(err, &smtpErr) {
		providerErr.StatusCode = smtpErr.Code
		providerErr.Transient = isTransientSMTPCode(smtpErr.Code)
		return providerErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		providerErr.Transient = true
	}
	return providerErr
}
