package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSubscriptionRequest struct {
	CustomerID snowflake.ID `json:"customer_id"`
	PlanID     snowflake.ID `json:"plan_id"`
	// StartDate defaults to today and becomes the first billing cycle anchor.
	StartDate *time.Time `json:"start_date,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	History(ctx context.Context, id snowflake.ID) ([]PlanHistory, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidAnchor        = errors.New("invalid_billing_cycle_anchor")
	ErrVersionConflict      = errors.New("version_conflict")
	ErrNoOpenSegment        = errors.New("no_open_plan_segment")
)
