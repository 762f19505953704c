package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/proration"
)

// NewSubscription builds an ACTIVE subscription anchored at a UTC-midnight date.
func NewSubscription(id, customerID, planID snowflake.ID, monthlyPriceCents int64, anchor time.Time) (*Subscription, error) {
	if customerID == 0 {
		return nil, ErrInvalidCustomer
	}
	if planID == 0 {
		return nil, ErrInvalidPlan
	}
	if monthlyPriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if !proration.IsNormalized(anchor) {
		return nil, ErrInvalidAnchor
	}
	return &Subscription{
		ID:                 id,
		CustomerID:         customerID,
		PlanID:             planID,
		MonthlyPriceCents:  monthlyPriceCents,
		BillingCycleAnchor: anchor.UTC(),
		Status:             SubscriptionStatusActive,
		Version:            1,
	}, nil
}

// CurrentPeriod is the billing period that starts at the anchor.
func (s Subscription) CurrentPeriod() (proration.Period, error) {
	return proration.BillingPeriod(s.BillingCycleAnchor.UTC())
}

// CheckVersion compares a caller-supplied version, when present.
func (s Subscription) CheckVersion(expected *int64) error {
	if expected != nil && *expected != s.Version {
		return ErrVersionConflict
	}
	return nil
}
