// Package domain contains manual and system-generated billing adjustments.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/proration"
	"gorm.io/datatypes"
)

type AdjustmentType string

const (
	AdjustmentTypeCredit     AdjustmentType = "CREDIT"
	AdjustmentTypeCharge     AdjustmentType = "CHARGE"
	AdjustmentTypeCorrection AdjustmentType = "CORRECTION"
)

func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentTypeCredit, AdjustmentTypeCharge, AdjustmentTypeCorrection:
		return true
	}
	return false
}

type ReasonCode string

const (
	ReasonGoodwill      ReasonCode = "GOODWILL"
	ReasonServiceOutage ReasonCode = "SERVICE_OUTAGE"
	ReasonPromotional   ReasonCode = "PROMOTIONAL"
	ReasonLateFee       ReasonCode = "LATE_FEE"
	ReasonPlanChange    ReasonCode = "PLAN_CHANGE"
	ReasonCancellation  ReasonCode = "CANCELLATION"
	ReasonBillingError  ReasonCode = "BILLING_ERROR"
	ReasonOther         ReasonCode = "OTHER"
)

func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonGoodwill, ReasonServiceOutage, ReasonPromotional, ReasonLateFee,
		ReasonPlanChange, ReasonCancellation, ReasonBillingError, ReasonOther:
		return true
	}
	return false
}

// IsProration reports whether the adjustment came from a plan change or cancellation.
func (r ReasonCode) IsProration() bool {
	return r == ReasonPlanChange || r == ReasonCancellation
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusApplied Status = "APPLIED"
	StatusVoided  Status = "VOIDED"
)

// Adjustment is a signed credit (negative) or charge (positive) outside the recurring fee.
type Adjustment struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID      `gorm:"not null;index" json:"subscription_id"`
	AmountCents    int64             `gorm:"not null" json:"amount_cents"`
	Type           AdjustmentType    `gorm:"column:adjustment_type;type:text;not null" json:"adjustment_type"`
	ReasonCode     ReasonCode        `gorm:"type:text;not null;index" json:"reason_code"`
	Description    string            `gorm:"type:text" json:"description"`
	EffectiveDate  time.Time         `gorm:"not null;index" json:"effective_date"`
	Status         Status            `gorm:"type:text;not null;index" json:"status"`
	Taxable        bool              `gorm:"not null" json:"taxable"`
	PlanHistoryID  *snowflake.ID     `gorm:"index" json:"plan_history_id,omitempty"`
	InvoiceID      *snowflake.ID     `gorm:"index" json:"invoice_id,omitempty"`
	JournalEntryID *snowflake.ID     `json:"journal_entry_id,omitempty"`
	AppliedAt      *time.Time        `json:"applied_at,omitempty"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	VoidReason     string            `gorm:"type:text" json:"void_reason,omitempty"`
	CreatedBy      string            `gorm:"type:text" json:"created_by,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Adjustment) TableName() string { return "adjustments" }

// NewAdjustment validates inputs and coerces the sign of amount to match the type:
// credits are stored negative, charges positive, corrections as given.
func NewAdjustment(id, subscriptionID snowflake.ID, amountCents int64, typ AdjustmentType, reason ReasonCode, description string, effective time.Time) (*Adjustment, error) {
	if subscriptionID == 0 {
		return nil, ErrInvalidSubscription
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	if !reason.Valid() {
		return nil, ErrInvalidReason
	}
	if amountCents == 0 {
		return nil, ErrInvalidAmount
	}
	if !proration.IsNormalized(effective) {
		return nil, ErrInvalidEffectiveDate
	}

	return &Adjustment{
		ID:             id,
		SubscriptionID: subscriptionID,
		AmountCents:    SignedAmount(typ, amountCents),
		Type:           typ,
		ReasonCode:     reason,
		Description:    strings.TrimSpace(description),
		EffectiveDate:  effective.UTC(),
		Status:         StatusPending,
		Metadata:       datatypes.JSONMap{},
	}, nil
}

func SignedAmount(typ AdjustmentType, amount int64) int64 {
	switch typ {
	case AdjustmentTypeCredit:
		if amount > 0 {
			return -amount
		}
	case AdjustmentTypeCharge:
		if amount < 0 {
			return -amount
		}
	}
	return amount
}
