// Package domain defines the billing orchestrator: plan changes, cancellations,
// invoice generation and the scheduled batch operations built on them.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
)

type ChangePlanRequest struct {
	SubscriptionID snowflake.ID
	NewPlanID      snowflake.ID
	// EffectiveDate defaults to today. Dates on or after the current period end defer the change.
	EffectiveDate   *time.Time
	Reason          string
	ExpectedVersion *int64
	ActorID         string
}

type PlanSummary struct {
	ID                snowflake.ID `json:"id"`
	Code              string       `json:"code"`
	Name              string       `json:"name"`
	MonthlyPriceCents int64        `json:"monthly_price_cents"`
	FormattedPrice    string       `json:"formatted_price"`
}

type ChangePlanResult struct {
	Subscription  *subscriptiondomain.Subscription `json:"subscription"`
	OldPlan       PlanSummary                      `json:"old_plan"`
	NewPlan       PlanSummary                      `json:"new_plan"`
	ProrationType subscriptiondomain.ProrationType `json:"proration_type"`
	EffectiveDate time.Time                        `json:"effective_date"`
	// Proration is nil when the change is deferred to the next cycle.
	Proration    *proration.PlanChangeResult `json:"proration,omitempty"`
	SegmentID    snowflake.ID                `json:"plan_history_id"`
	AdjustmentID *snowflake.ID               `json:"adjustment_id,omitempty"`
}

type CancelRequest struct {
	SubscriptionID snowflake.ID
	// CancellationDate defaults to today and only applies to immediate cancellations.
	CancellationDate *time.Time
	Reason           string
	// Immediate defaults to true; false cancels at the end of the current period.
	Immediate       *bool
	ExpectedVersion *int64
	ActorID         string
}

type CancelResult struct {
	Subscription  *subscriptiondomain.Subscription `json:"subscription"`
	Immediate     bool                             `json:"immediate"`
	EffectiveDate time.Time                        `json:"effective_date"`
	// Proration is set for immediate cancellations.
	Proration    *proration.CancellationResult `json:"proration,omitempty"`
	SegmentID    snowflake.ID                  `json:"plan_history_id"`
	AdjustmentID *snowflake.ID                 `json:"adjustment_id,omitempty"`
}

type GenerateInvoiceRequest struct {
	SubscriptionID            snowflake.ID
	PeriodStart               time.Time
	PeriodEnd                 time.Time
	IncludePendingAdjustments bool
	// DueDate defaults to one billing cycle after PeriodEnd.
	DueDate *time.Time
	// TaxPercentage defaults to the configured percentage.
	TaxPercentage *decimal.Decimal
	Finalize      bool
}

type RenewOutcome string

const (
	RenewInvoiced RenewOutcome = "INVOICED"
	RenewSkipped  RenewOutcome = "SKIPPED"
	RenewExpired  RenewOutcome = "EXPIRED"
)

type RenewResult struct {
	SubscriptionID snowflake.ID  `json:"subscription_id"`
	Outcome        RenewOutcome  `json:"outcome"`
	Reason         string        `json:"reason,omitempty"`
	InvoiceID      *snowflake.ID `json:"invoice_id,omitempty"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	Anchor         time.Time     `json:"billing_cycle_anchor"`
}

type ItemStatus string

const (
	ItemSuccess ItemStatus = "SUCCESS"
	ItemSkipped ItemStatus = "SKIPPED"
	ItemFailed  ItemStatus = "FAILED"
)

type BatchItem struct {
	ID     string     `json:"id"`
	Status ItemStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// BatchResult reports a batch run where each item succeeds or fails on its own.
type BatchResult struct {
	Success int         `json:"success"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Errors  []string    `json:"errors"`
	Items   []BatchItem `json:"items"`
}

// Record appends one item outcome and updates the counters.
func (r *BatchResult) Record(id string, status ItemStatus, err error) {
	item := BatchItem{ID: id, Status: status}
	switch status {
	case ItemSuccess:
		r.Success++
	case ItemSkipped:
		r.Skipped++
	default:
		item.Status = ItemFailed
		r.Failed++
		if err != nil {
			item.Error = err.Error()
			r.Errors = append(r.Errors, id+": "+err.Error())
		}
	}
	r.Items = append(r.Items, item)
}

type CleanupResult struct {
	ArchivedInvoices       int64    `json:"archived_invoices"`
	ArchivedJournalEntries int64    `json:"archived_journal_entries"`
	PurgedDraftInvoices    int64    `json:"purged_draft_invoices"`
	KeptDraftInvoices      int64    `json:"kept_draft_invoices"`
	PurgedAdjustments      int64    `json:"purged_adjustments"`
	Errors                 []string `json:"errors"`
}

type Service interface {
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*ChangePlanResult, error)
	CancelSubscription(ctx context.Context, req CancelRequest) (*CancelResult, error)
	GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (*invoicedomain.InvoiceDetail, error)
	FinalizeInvoice(ctx context.Context, invoiceID snowflake.ID) (*invoicedomain.InvoiceDetail, error)

	RenewSubscription(ctx context.Context, subscriptionID snowflake.ID, asOf time.Time) (RenewResult, error)
	RenewDueSubscriptions(ctx context.Context, asOf time.Time) (BatchResult, error)
	ProcessScheduledPlanChanges(ctx context.Context, asOf time.Time) (BatchResult, error)
	ProcessScheduledCancellations(ctx context.Context, asOf time.Time) (BatchResult, error)
	FinalizeStaleDrafts(ctx context.Context, now time.Time) (BatchResult, error)
	SendPaymentReminders(ctx context.Context, now time.Time) (BatchResult, error)
	Cleanup(ctx context.Context, now time.Time) (CleanupResult, error)
}

var (
	ErrSubscriptionNotActive   = errors.New("subscription_not_active")
	ErrSubscriptionNotBillable = errors.New("subscription_not_billable")
	ErrSamePlan                = errors.New("plan_unchanged")
	ErrPendingPlanChange       = errors.New("plan_change_already_pending")
	ErrInvalidEffectiveDate    = errors.New("invalid_effective_date")
	ErrAlreadyCancelled        = errors.New("subscription_already_cancelled")
	ErrInvalidCancellationDate = errors.New("invalid_cancellation_date")
	ErrInvalidPeriod           = errors.New("invalid_billing_period")
	ErrNoRecipient             = errors.New("invoice_has_no_recipient")

	// ErrDuplicateInvoice is returned when the period was already invoiced.
	ErrDuplicateInvoice = invoicedomain.ErrDuplicateInvoice
)
