package scheduler

import (
	"time"

	"github.com/smallbiznis/billingcore/internal/config"
)

// Config controls per-run limits shared by every job.
type Config struct {
	// Timeout bounds a single run; the run's context is cancelled after it.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Minute}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig().Timeout
	}
	return c
}

func ProvideConfig(holder *config.BillingConfigHolder) Config {
	return Config{Timeout: holder.Get().Jobs.Timeout}.withDefaults()
}
