package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRACKING_DOMAIN", "t.example.com")
	t.Setenv("EMAIL_HOST", "smtp.example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.MailProvider != MailProviderSMTP {
		t.Errorf("MailProvider = %s, want smtp", cfg.MailProvider)
	}
	if cfg.EmailPort != 465 || cfg.EmailSecurity != "tls" {
		t.Errorf("smtp = %d/%s, want 465/tls", cfg.EmailPort, cfg.EmailSecurity)
	}
	if cfg.TrackingDefaultScheme != "http" {
		t.Errorf("TrackingDefaultScheme = %s, want http", cfg.TrackingDefaultScheme)
	}
	if cfg.SendConcurrency != 8 {
		t.Errorf("SendConcurrency = %d, want 8", cfg.SendConcurrency)
	}
	if cfg.SendRateLimitPerSec != 0 {
		t.Errorf("SendRateLimitPerSec = %d, want 0", cfg.SendRateLimitPerSec)
	}
	if cfg.DatabaseDSN != "" || cfg.RabbitMQURL != "" {
		t.Errorf("optional integrations should default to disabled")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EMAIL_SECURITY", "STARTTLS")
	t.Setenv("EMAIL_PORT", "587")
	t.Setenv("SEND_RATE_LIMIT_PER_SEC", "25")
	t.Setenv("TRACKING_DEFAULT_SCHEME", "https")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.EmailSecurity != "starttls" || cfg.EmailPort != 587 {
		t.Errorf("smtp = %d/%s, want 587/starttls", cfg.EmailPort, cfg.EmailSecurity)
	}
	if cfg.SendRateLimitPerSec != 25 {
		t.Errorf("SendRateLimitPerSec = %d, want 25", cfg.SendRateLimitPerSec)
	}
	if cfg.TrackingDefaultScheme != "https" {
		t.Errorf("TrackingDefaultScheme = %s, want https", cfg.TrackingDefaultScheme)
	}
}

func TestLoad_ResendProvider(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRACKING_DOMAIN", "t.example.com")
	t.Setenv("MAIL_PROVIDER", "Resend")
	t.Setenv("RESEND_API_KEY", "re_123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MailProvider != MailProviderResend {
		t.Errorf("MailProvider = %s, want resend", cfg.MailProvider)
	}
	if cfg.ResendAPIURL != "https://api.resend.com" {
		t.Errorf("ResendAPIURL = %s, want default", cfg.ResendAPIURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing TRACKING_DOMAIN, got nil")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			RedisURL:        "redis://localhost:6379/0",
			TrackingDomain:  "t.example.com",
			MailProvider:    MailProviderSMTP,
			EmailHost:       "smtp.example.com",
			EmailPort:       465,
			EmailSecurity:   "tls",
			SendConcurrency: 8,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid smtp", mutate: func(c *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.MailProvider = "sendgrid" }, wantErr: "MAIL_PROVIDER"},
		{name: "smtp without host", mutate: func(c *Config) { c.EmailHost = "" }, wantErr: "EMAIL_HOST"},
		{name: "smtp bad port", mutate: func(c *Config) { c.EmailPort = 70000 }, wantErr: "EMAIL_PORT"},
		{name: "smtp bad security", mutate: func(c *Config) { c.EmailSecurity = "ssl" }, wantErr: "EMAIL_SECURITY"},
		{name: "resend without key", mutate: func(c *Config) { c.MailProvider = MailProviderResend }, wantErr: "RESEND_API_KEY"},
		{name: "zero concurrency", mutate: func(c *Config) { c.SendConcurrency = 0 }, wantErr: "SEND_CONCURRENCY"},
		{name: "negative rate limit", mutate: func(c *Config) { c.SendRateLimitPerSec = -1 }, wantErr: "SEND_RATE_LIMIT_PER_SEC"},
	}

	for _, tt := range tests {
		cfg := base()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error = %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%s: error = %v, want mention of %s", tt.name, err, tt.wantErr)
		}
	}
}
