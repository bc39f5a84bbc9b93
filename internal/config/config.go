package config

import (
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`
	JWTSecret   string `validate:"required"`
	JWTIssuer   string

	CORSAllowedOrigins []string

	// HyperPay processor credentials and endpoints.
	HyperPayClientID     string `validate:"required"`
	HyperPayClientSecret string `validate:"required"`
	HyperPayBaseURL      string `validate:"required,url"`
	HyperPayWidgetURL    string `validate:"required,url"`
	GatewaySlug          string

	// Payment policy.
	Currency          string `validate:"required,len=3"`
	MerchantRefPrefix string `validate:"required,excludes=-"`
	SiteID            string `validate:"required,excludes=-"`
	PublicBaseURL     string

	// Browser return-flow polling parameters.
	ReturnMaxAttempts int
	ReturnWaitTime    time.Duration

	// Outbound HTTP to the processor.
	OutboundTimeout     time.Duration
	CircuitMinRequests  int
	CircuitFailureRate  float64
	CircuitOpenFor      time.Duration
	CheckoutMaxAttempts int

	// Webhook replay fast-path.
	WebhookReplayTTL time.Duration

	// Rate limiting (ulule/limiter format, e.g. "60-M").
	RateLimit string

	// Fulfillment queue.
	QueueConcurrency int
	QueueName        string

	// Observability.
	LogLevel           string
	LogFormat          string
	MetricsNamespace   string
	TracingEnabled     bool
	TracingEndpoint    string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:          k.String("DATABASE_URL"),
		RedisURL:             k.String("REDIS_URL"),
		JWTSecret:            k.String("JWT_SECRET"),
		JWTIssuer:            strings.TrimSpace(k.String("JWT_ISSUER")),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		HyperPayClientID:     k.String("HYPERPAY_CLIENT_ID"),
		HyperPayClientSecret: k.String("HYPERPAY_CLIENT_SECRET"),
		HyperPayBaseURL:      strings.TrimRight(k.String("HYPERPAY_BASE_URL"), "/"),
		HyperPayWidgetURL:    k.String("HYPERPAY_WIDGET_URL"),
		GatewaySlug:          valueOrDefault(k.String("GATEWAY_SLUG"), "hyperpay"),
		Currency:             valueOrDefault(k.String("PAYMENT_CURRENCY"), "SAR"),
		MerchantRefPrefix:    valueOrDefault(k.String("MERCHANT_REF_PREFIX"), "zl"),
		SiteID:               valueOrDefault(k.String("SITE_ID"), "1"),
		PublicBaseURL:        strings.TrimRight(k.String("PUBLIC_BASE_URL"), "/"),
		ReturnMaxAttempts:    intOrDefault(k, "RETURN_MAX_ATTEMPTS", 24),
		ReturnWaitTime:       parseDuration(k.String("RETURN_WAIT_TIME"), "5s"),
		OutboundTimeout:      parseDuration(k.String("OUTBOUND_TIMEOUT"), "15s"),
		CircuitMinRequests:   intOrDefault(k, "CIRCUIT_MIN_REQUESTS", 5),
		CircuitFailureRate:   floatOrDefault(k, "CIRCUIT_FAILURE_RATE", 0.5),
		CircuitOpenFor:       parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),
		CheckoutMaxAttempts:  intOrDefault(k, "CHECKOUT_MAX_ATTEMPTS", 1),
		WebhookReplayTTL:     parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		RateLimit:            valueOrDefault(k.String("RATE_LIMIT"), "120-M"),
		QueueConcurrency:     intOrDefault(k, "QUEUE_CONCURRENCY", 4),
		QueueName:            valueOrDefault(k.String("QUEUE_NAME"), "fulfillment"),
		LogLevel:             valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:            valueOrDefault(k.String("LOG_FORMAT"), "json"),
		MetricsNamespace:     valueOrDefault(k.String("METRICS_NAMESPACE"), "payments"),
		TracingEnabled:       k.Bool("TRACING_ENABLED"),
		TracingEndpoint:      k.String("TRACING_ENDPOINT"),
		TracingSampleRatio:   floatOrDefault(k, "TRACING_SAMPLE_RATIO", 1),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func floatOrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}
