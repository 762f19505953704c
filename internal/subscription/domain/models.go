// Package domain contains persistence models for subscriptions and their plan history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive              SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPendingCancellation SubscriptionStatus = "PENDING_CANCELLATION"
	SubscriptionStatusCancelled           SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired             SubscriptionStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// Billable reports whether the subscription still renews and can be invoiced.
func (s SubscriptionStatus) Billable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPendingCancellation
}

// Subscription captures a customer's agreement to a single plan.
type Subscription struct {
	ID                        snowflake.ID       `gorm:"primaryKey" json:"id"`
	CustomerID                snowflake.ID       `gorm:"not null;index" json:"customer_id"`
	PlanID                    snowflake.ID       `gorm:"not null;index" json:"plan_id"`
	MonthlyPriceCents         int64              `gorm:"not null" json:"monthly_price_cents"`
	BillingCycleAnchor        time.Time          `gorm:"not null;index" json:"billing_cycle_anchor"`
	Status                    SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`
	ScheduledCancellationDate *time.Time         `json:"scheduled_cancellation_date,omitempty"`
	LastPlanChangeDate        *time.Time         `json:"last_plan_change_date,omitempty"`
	CancelledAt               *time.Time         `json:"cancelled_at,omitempty"`
	CancellationReason        string             `gorm:"type:text" json:"cancellation_reason,omitempty"`
	Version                   int64              `gorm:"not null" json:"version"`
	CreatedAt                 time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt                 time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

type ChangeType string

const (
	ChangeTypeInitial      ChangeType = "INITIAL"
	ChangeTypePlanChange   ChangeType = "PLAN_CHANGE"
	ChangeTypeCancellation ChangeType = "CANCELLATION"
)

type ProrationType string

const (
	ProrationTypeImmediate   ProrationType = "IMMEDIATE"
	ProrationTypeProrated    ProrationType = "PRORATED"
	ProrationTypeNextCycle   ProrationType = "NEXT_CYCLE"
	ProrationTypeEndOfPeriod ProrationType = "END_OF_PERIOD"
)

// PlanHistory is one time segment of the plan a subscription was on.
// Segments of a subscription never overlap and exactly one has a nil EffectiveTo
// while the subscription is billable.
type PlanHistory struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	SubscriptionID       snowflake.ID   `gorm:"not null;index" json:"subscription_id"`
	OldPlanID            *snowflake.ID  `json:"old_plan_id,omitempty"`
	NewPlanID            *snowflake.ID  `json:"new_plan_id,omitempty"`
	ChangeType           ChangeType     `gorm:"type:text;not null" json:"change_type"`
	EffectiveFrom        time.Time      `gorm:"not null;index" json:"effective_from"`
	EffectiveTo          *time.Time     `json:"effective_to,omitempty"`
	ProrationType        ProrationType  `gorm:"type:text;not null" json:"proration_type"`
	ProrationAmountCents int64          `gorm:"not null" json:"proration_amount_cents"`
	Calculation          datatypes.JSON `gorm:"type:jsonb" json:"calculation,omitempty"`
	Reason               string         `gorm:"type:text" json:"reason,omitempty"`
	Processed            bool           `gorm:"not null;index" json:"processed"`
	ProcessedAt          *time.Time     `json:"processed_at,omitempty"`
	AdjustmentID         *snowflake.ID  `json:"adjustment_id,omitempty"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
}

func (PlanHistory) TableName() string { return "plan_history" }

// IsOpen reports whether the segment has not been superseded yet.
func (p PlanHistory) IsOpen() bool { return p.EffectiveTo == nil }
