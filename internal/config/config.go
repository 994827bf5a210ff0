package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// Reminder store backend: "postgres" or "mongo".
	ReminderStore string
	MongoURI      string
	MongoDatabase string

	DispatchInterval time.Duration
	DispatchLeaseTTL time.Duration
	EmailSendTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// Email
	EmailProvider       string
	SendGridAPIKey      string
	EmailFrom           string
	EmailFromName       string
	InternalNotifyEmail string
	RescheduleURL       string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SESConfigurationSet string

	// WhatsApp campaign platform
	WhatsAppAPIKey           string
	WhatsAppScheduleBaseURL  string
	WhatsAppImmediateBaseURL string
	WhatsAppTimeout          time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	RescheduleRequireOTP bool
	OTPTTL               time.Duration
	OTPRatePerMinute     int

	// HTTP
	InternalAuthSecret string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		ReminderStore: strings.ToLower(getEnv("REMINDER_STORE", "postgres")),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "consultations"),

		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", time.Minute),
		DispatchLeaseTTL: getEnvAsDuration("DISPATCH_LEASE_TTL", 55*time.Second),
		EmailSendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 20*time.Second),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),

		EmailProvider:       strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Ineffa"),
		InternalNotifyEmail: getEnv("INTERNAL_NOTIFY_EMAIL", ""),
		RescheduleURL:       getEnv("RESCHEDULE_URL", "https://ineffa.tech/reshedule-consultaion"),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		WhatsAppAPIKey:           getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppScheduleBaseURL:  getEnv("WHATSAPP_SCHEDULE_BASE_URL", "https://wa.iconicsolution.co.in"),
		WhatsAppImmediateBaseURL: getEnv("WHATSAPP_IMMEDIATE_BASE_URL", "http://ow.ewiths.com"),
		WhatsAppTimeout:          getEnvAsDuration("WHATSAPP_TIMEOUT", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RescheduleRequireOTP: getEnvAsBool("RESCHEDULE_REQUIRE_OTP", false),
		OTPTTL:               getEnvAsDuration("OTP_TTL", 10*time.Minute),
		OTPRatePerMinute:     getEnvAsInt("OTP_RATE_PER_MINUTE", 3),

		InternalAuthSecret: getEnv("INTERNAL_AUTH_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
