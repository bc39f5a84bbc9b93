package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/payments")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HYPERPAY_CLIENT_ID", "client-id")
	t.Setenv("HYPERPAY_CLIENT_SECRET", "client-secret")
	t.Setenv("HYPERPAY_BASE_URL", "https://api.hyperpay.example")
	t.Setenv("HYPERPAY_WIDGET_URL", "https://widget.hyperpay.example/v1/paymentWidgets.js")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "SAR", cfg.Currency)
	require.Equal(t, "hyperpay", cfg.GatewaySlug)
	require.Equal(t, 24, cfg.ReturnMaxAttempts)
	require.Equal(t, 5*time.Second, cfg.ReturnWaitTime)
	require.Equal(t, 24*time.Hour, cfg.WebhookReplayTTL)
	require.Equal(t, "120-M", cfg.RateLimit)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("RETURN_MAX_ATTEMPTS", "10")
	t.Setenv("RETURN_WAIT_TIME", "2s")
	t.Setenv("PAYMENT_CURRENCY", "USD")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, 10, cfg.ReturnMaxAttempts)
	require.Equal(t, 2*time.Second, cfg.ReturnWaitTime)
	require.Equal(t, "USD", cfg.Currency)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HYPERPAY_CLIENT_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "HyperPayClientSecret")
}

func TestLoadRejectsSeparatorInPrefix(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MERCHANT_REF_PREFIX", "zl-shop")

	_, err := config.Load()
	require.Error(t, err)
}
