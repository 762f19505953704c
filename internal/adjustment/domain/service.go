package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateRequest struct {
	SubscriptionID snowflake.ID
	AmountCents    int64
	Type           AdjustmentType
	ReasonCode     ReasonCode
	Description    string
	// EffectiveDate defaults to today.
	EffectiveDate *time.Time
	Taxable       bool
	AutoApply     bool
	PlanHistoryID *snowflake.ID
	CreatedBy     string
	Metadata      map[string]any
}

type GoodwillCreditRequest struct {
	SubscriptionID snowflake.ID
	AmountCents    int64
	Description    string
	CreatedBy      string
	AutoApply      bool
}

type ServiceCreditPolicy string

const (
	ServiceCreditDays       ServiceCreditPolicy = "DAYS"
	ServiceCreditHours      ServiceCreditPolicy = "HOURS"
	ServiceCreditPercentage ServiceCreditPolicy = "PERCENTAGE"
)

type ServiceCreditRequest struct {
	SubscriptionID snowflake.ID
	Policy         ServiceCreditPolicy
	// Units is days or hours of outage, depending on Policy.
	Units int64
	// Percentage of the monthly price, as a decimal string ("12.5").
	Percentage string
	// NoCap lifts the default cap of one month's price.
	NoCap       bool
	Description string
	CreatedBy   string
	AutoApply   bool
}

type PromotionalDiscountRequest struct {
	SubscriptionID snowflake.ID
	// Either Percentage of the monthly price or a fixed AmountCents.
	Percentage  string
	AmountCents int64
	PromoCode   string
	Description string
	CreatedBy   string
}

type LateFeeRequest struct {
	SubscriptionID snowflake.ID
	InvoiceID      snowflake.ID
	// Overrides of the configured late-fee policy.
	FixedCents   *int64
	Percentage   *string
	MinimumCents *int64
	CreatedBy    string
}

type VoidRequest struct {
	ID     snowflake.ID
	Reason string
}

type ListRequest struct {
	SubscriptionID snowflake.ID
	Status         *Status
}

type SummaryRequest struct {
	SubscriptionID snowflake.ID
	From           *time.Time
	To             *time.Time
}

type Bucket struct {
	Count       int   `json:"count"`
	AmountCents int64 `json:"amount_cents"`
}

type Summary struct {
	SubscriptionID    snowflake.ID          `json:"subscription_id"`
	From              *time.Time            `json:"from,omitempty"`
	To                *time.Time            `json:"to,omitempty"`
	Count             int                   `json:"count"`
	TotalCreditsCents int64                 `json:"total_credits_cents"`
	TotalChargesCents int64                 `json:"total_charges_cents"`
	NetCents          int64                 `json:"net_cents"`
	ByStatus          map[Status]Bucket     `json:"by_status"`
	ByReason          map[ReasonCode]Bucket `json:"by_reason"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Adjustment, error)
	CreateGoodwillCredit(ctx context.Context, req GoodwillCreditRequest) (*Adjustment, error)
	CreateServiceCredit(ctx context.Context, req ServiceCreditRequest) (*Adjustment, error)
	CreatePromotionalDiscount(ctx context.Context, req PromotionalDiscountRequest) (*Adjustment, error)
	CreateLateFee(ctx context.Context, req LateFeeRequest) (*Adjustment, error)
	Void(ctx context.Context, req VoidRequest) (*Adjustment, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Adjustment, error)
	List(ctx context.Context, req ListRequest) ([]Adjustment, error)
	Summary(ctx context.Context, req SummaryRequest) (Summary, error)

	// Transactional helpers used by invoice generation, plan changes and cleanup.
	InsertTx(ctx context.Context, tx *gorm.DB, adjustment *Adjustment) error
	ListPendingTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, upTo time.Time) ([]Adjustment, error)
	MarkAppliedTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) error
	CountAppliedTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (int64, error)
	PurgeVoided(ctx context.Context, voidedBefore time.Time) (int64, error)
}

var (
	ErrNotFound             = errors.New("adjustment_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidType          = errors.New("invalid_adjustment_type")
	ErrInvalidReason        = errors.New("invalid_reason_code")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidEffectiveDate = errors.New("invalid_effective_date")
	ErrInvalidPolicy        = errors.New("invalid_service_credit_policy")
	ErrInvalidPercentage    = errors.New("invalid_percentage")
	ErrNotPending           = errors.New("adjustment_not_pending")
	ErrInvoiceNotOverdue    = errors.New("invoice_not_eligible_for_late_fee")
)
