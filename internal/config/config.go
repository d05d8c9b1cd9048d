package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

// Mail providers selectable through MAIL_PROVIDER.
const (
	MailProviderSMTP   = "smtp"
	MailProviderResend = "resend"

	defaultResendAPIURL = "https://api.resend.com"
)

type Config struct {
	RedisURL              string `env:"REDIS_URL,required=true"`
	TrackingDomain        string `env:"TRACKING_DOMAIN,required=true"`
	TrackingDefaultScheme string `env:"TRACKING_DEFAULT_SCHEME,default=http"`

	MailProvider  string `env:"MAIL_PROVIDER,default=smtp"`
	EmailHost     string `env:"EMAIL_HOST"`
	EmailPort     int    `env:"EMAIL_PORT,default=465"`
	EmailUsername string `env:"EMAIL_USERNAME"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	EmailSecurity string `env:"EMAIL_SECURITY,default=tls"`
	ResendAPIURL  string `env:"RESEND_API_URL"`
	ResendAPIKey  string `env:"RESEND_API_KEY"`

	// Optional integrations; empty disables them.
	DatabaseDSN string `env:"DATABASE_DSN"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	SendConcurrency     int    `env:"SEND_CONCURRENCY,default=8"`
	SendRateLimitPerSec int    `env:"SEND_RATE_LIMIT_PER_SEC,default=0"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate normalizes provider settings and checks the requirements of the
// selected mail provider.
func (c *Config) Validate() error {
	c.MailProvider = strings.ToLower(strings.TrimSpace(c.MailProvider))
	c.EmailSecurity = strings.ToLower(strings.TrimSpace(c.EmailSecurity))

	switch c.MailProvider {
	case MailProviderSMTP:
		if strings.TrimSpace(c.EmailHost) == "" {
			return fmt.Errorf("EMAIL_HOST is required for the smtp provider")
		}
		if c.EmailPort <= 0 || c.EmailPort > 65535 {
			return fmt.Errorf("EMAIL_PORT must be between 1 and 65535, got %d", c.EmailPort)
		}
		switch c.EmailSecurity {
		case "tls", "starttls", "none":
		default:
			return fmt.Errorf("EMAIL_SECURITY must be tls, starttls or none, got %q", c.EmailSecurity)
		}
	case MailProviderResend:
		if strings.TrimSpace(c.ResendAPIKey) == "" {
			return fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
		if strings.TrimSpace(c.ResendAPIURL) == "" {
			c.ResendAPIURL = defaultResendAPIURL
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be smtp or resend, got %q", c.MailProvider)
	}

	if c.SendConcurrency < 1 {
		return fmt.Errorf("SEND_CONCURRENCY must be positive, got %d", c.SendConcurrency)
	}
	if c.SendRateLimitPerSec < 0 {
		return fmt.Errorf("SEND_RATE_LIMIT_PER_SEC must not be negative, got %d", c.SendRateLimitPerSec)
	}
	return nil
}
