package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	cfg := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(cfg))
	require.Equal(t, "0", cfg.TaxPercentage().String())
	require.Equal(t, 3*24*time.Hour, cfg.Reminders.DueSoonWindow)
}

func TestValidateBillingConfigRejectsBadTax(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.DefaultTaxPercentage = "abc"
	require.Error(t, validateBillingConfig(cfg))

	cfg.DefaultTaxPercentage = "120"
	require.Error(t, validateBillingConfig(cfg))
}

func TestValidateBillingConfigRequiresSequenceToken(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.InvoiceNumberTemplate = "INV-{YYYY}"
	require.Error(t, validateBillingConfig(cfg))
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SCHEDULER_ENABLED", "off")

	cfg := Load()
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.True(t, cfg.Redis.Enabled)
	require.False(t, cfg.SchedulerEnabled)
}
