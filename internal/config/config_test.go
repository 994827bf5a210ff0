package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "REMINDER_STORE", "DISPATCH_INTERVAL", "EMAIL_PROVIDER", "WHATSAPP_TIMEOUT", "OTP_TTL", "RESCHEDULE_REQUIRE_OTP"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ReminderStore != "postgres" {
		t.Fatalf("expected postgres reminder store, got %s", cfg.ReminderStore)
	}
	if cfg.DispatchInterval != time.Minute {
		t.Fatalf("expected 60s dispatch interval, got %s", cfg.DispatchInterval)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.WhatsAppTimeout != 15*time.Second {
		t.Fatalf("expected 15s whatsapp timeout, got %s", cfg.WhatsAppTimeout)
	}
	if cfg.WhatsAppScheduleBaseURL != "https://wa.iconicsolution.co.in" {
		t.Fatalf("unexpected schedule base url %s", cfg.WhatsAppScheduleBaseURL)
	}
	if cfg.OTPTTL != 10*time.Minute {
		t.Fatalf("expected 10m otp ttl, got %s", cfg.OTPTTL)
	}
	if cfg.RescheduleRequireOTP {
		t.Fatalf("expected otp requirement disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REMINDER_STORE", "Mongo")
	t.Setenv("DISPATCH_INTERVAL", "30s")
	t.Setenv("OUTBOX_BATCH_SIZE", "50")
	t.Setenv("EMAIL_PROVIDER", "SES")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("RESCHEDULE_REQUIRE_OTP", "1")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.ReminderStore != "mongo" {
		t.Fatalf("expected lowercased store override, got %s", cfg.ReminderStore)
	}
	if cfg.DispatchInterval != 30*time.Second {
		t.Fatalf("expected dispatch interval override, got %s", cfg.DispatchInterval)
	}
	if cfg.OutboxBatchSize != 50 {
		t.Fatalf("expected batch size override, got %d", cfg.OutboxBatchSize)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected ses provider, got %s", cfg.EmailProvider)
	}
	if !cfg.RedisTLS || !cfg.RescheduleRequireOTP {
		t.Fatalf("expected boolean overrides applied")
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DISPATCH_INTERVAL", "soon")
	t.Setenv("WHATSAPP_TIMEOUT", "-5s")
	cfg := Load()
	if cfg.DispatchInterval != time.Minute {
		t.Fatalf("expected fallback interval, got %s", cfg.DispatchInterval)
	}
	if cfg.WhatsAppTimeout != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.WhatsAppTimeout)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ineffa.tech, ,https://admin.ineffa.tech ")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.ineffa.tech" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	if got := Load().CORSAllowedOrigins; got != nil {
		t.Fatalf("expected no origins, got %v", got)
	}
}
