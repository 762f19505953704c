package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the hot-reloadable billing policy loaded from billing.yml.
type BillingConfig struct {
	Currency              string         `mapstructure:"currency"`
	DefaultTaxPercentage  string         `mapstructure:"defaultTaxPercentage"`
	InvoiceNumberTemplate string         `mapstructure:"invoiceNumberTemplate"`
	Reminders             ReminderPolicy `mapstructure:"reminders"`
	Cleanup               CleanupPolicy  `mapstructure:"cleanup"`
	Drafts                DraftPolicy    `mapstructure:"drafts"`
	LateFee               LateFeePolicy  `mapstructure:"lateFee"`
	Jobs                  JobSchedule    `mapstructure:"jobs"`
	IdempotencyTTL        time.Duration  `mapstructure:"idempotencyTTL"`
}

type ReminderPolicy struct {
	DueSoonWindow time.Duration `mapstructure:"dueSoonWindow"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
}

type CleanupPolicy struct {
	ArchiveAfter    time.Duration `mapstructure:"archiveAfter"`
	DraftPurgeAfter time.Duration `mapstructure:"draftPurgeAfter"`
	VoidPurgeAfter  time.Duration `mapstructure:"voidPurgeAfter"`
}

type DraftPolicy struct {
	FinalizeAfter time.Duration `mapstructure:"finalizeAfter"`
}

type LateFeePolicy struct {
	FixedCents   int64  `mapstructure:"fixedCents"`
	Percentage   string `mapstructure:"percentage"`
	MinimumCents int64  `mapstructure:"minimumCents"`
}

// JobSchedule holds cron specs (UTC) per scheduler job.
type JobSchedule struct {
	GenerateInvoices     string        `mapstructure:"generateInvoices"`
	ProcessPlanChanges   string        `mapstructure:"processPlanChanges"`
	ProcessCancellations string        `mapstructure:"processCancellations"`
	FinalizeDrafts       string        `mapstructure:"finalizeDrafts"`
	PaymentReminders     string        `mapstructure:"paymentReminders"`
	WeeklyCleanup        string        `mapstructure:"weeklyCleanup"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:              "INR",
		DefaultTaxPercentage:  "0",
		InvoiceNumberTemplate: "INV-{YYYY}{MM}-{SEQ6}",
		Reminders: ReminderPolicy{
			DueSoonWindow: 3 * 24 * time.Hour,
			Cooldown:      7 * 24 * time.Hour,
		},
		Cleanup: CleanupPolicy{
			ArchiveAfter:    365 * 24 * time.Hour,
			DraftPurgeAfter: 182 * 24 * time.Hour,
			VoidPurgeAfter:  182 * 24 * time.Hour,
		},
		Drafts: DraftPolicy{
			FinalizeAfter: time.Hour,
		},
		LateFee: LateFeePolicy{
			FixedCents:   0,
			Percentage:   "1.5",
			MinimumCents: 100,
		},
		Jobs: JobSchedule{
			GenerateInvoices:     "0 0 * * *",
			ProcessPlanChanges:   "5 0 * * *",
			ProcessCancellations: "10 0 * * *",
			FinalizeDrafts:       "0 * * * *",
			PaymentReminders:     "0 9 * * *",
			WeeklyCleanup:        "0 3 * * 0",
			Timeout:              30 * time.Minute,
		},
		IdempotencyTTL: 24 * time.Hour,
	}
}

// TaxPercentage returns the default tax percentage as a decimal.
func (c BillingConfig) TaxPercentage() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.DefaultTaxPercentage))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed config, mostly for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("config.billing")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/billingcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultBillingConfig())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func setDefaults(v *viper.Viper, d BillingConfig) {
	v.SetDefault("billing.currency", d.Currency)
	v.SetDefault("billing.defaultTaxPercentage", d.DefaultTaxPercentage)
	v.SetDefault("billing.invoiceNumberTemplate", d.InvoiceNumberTemplate)
	v.SetDefault("billing.reminders.dueSoonWindow", d.Reminders.DueSoonWindow)
	v.SetDefault("billing.reminders.cooldown", d.Reminders.Cooldown)
	v.SetDefault("billing.cleanup.archiveAfter", d.Cleanup.ArchiveAfter)
	v.SetDefault("billing.cleanup.draftPurgeAfter", d.Cleanup.DraftPurgeAfter)
	v.SetDefault("billing.cleanup.voidPurgeAfter", d.Cleanup.VoidPurgeAfter)
	v.SetDefault("billing.drafts.finalizeAfter", d.Drafts.FinalizeAfter)
	v.SetDefault("billing.lateFee.fixedCents", d.LateFee.FixedCents)
	v.SetDefault("billing.lateFee.percentage", d.LateFee.Percentage)
	v.SetDefault("billing.lateFee.minimumCents", d.LateFee.MinimumCents)
	v.SetDefault("billing.jobs.generateInvoices", d.Jobs.GenerateInvoices)
	v.SetDefault("billing.jobs.processPlanChanges", d.Jobs.ProcessPlanChanges)
	v.SetDefault("billing.jobs.processCancellations", d.Jobs.ProcessCancellations)
	v.SetDefault("billing.jobs.finalizeDrafts", d.Jobs.FinalizeDrafts)
	v.SetDefault("billing.jobs.paymentReminders", d.Jobs.PaymentReminders)
	v.SetDefault("billing.jobs.weeklyCleanup", d.Jobs.WeeklyCleanup)
	v.SetDefault("billing.jobs.timeout", d.Jobs.Timeout)
	v.SetDefault("billing.idempotencyTTL", d.IdempotencyTTL)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	tax, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultTaxPercentage))
	if err != nil {
		return errors.New("billing.defaultTaxPercentage must be a decimal")
	}
	if tax.IsNegative() || tax.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("billing.defaultTaxPercentage must be between 0 and 100")
	}
	if !strings.Contains(cfg.InvoiceNumberTemplate, "{SEQ") {
		return errors.New("billing.invoiceNumberTemplate must contain a sequence token")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("billing.idempotencyTTL must be positive")
	}
	return nil
}
