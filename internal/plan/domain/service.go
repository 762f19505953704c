package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreatePlanRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
	AutoRenew         *bool  `json:"auto_renew,omitempty"`
}

type UpdatePriceRequest struct {
	PlanID            snowflake.ID `json:"-"`
	MonthlyPriceCents int64        `json:"monthly_price_cents"`
	EffectiveFrom     *time.Time   `json:"effective_from,omitempty"`
}

type ListPlanRequest struct {
	IncludeInactive bool
}

// PlanView is the catalog representation returned to callers.
type PlanView struct {
	Plan
	FormattedPrice string `json:"formatted_price"`
}

type Service interface {
	List(ctx context.Context, req ListPlanRequest) ([]PlanView, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Plan, error)
	Create(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	UpdatePrice(ctx context.Context, req UpdatePriceRequest) (*Plan, error)
	PriceHistory(ctx context.Context, planID snowflake.ID) ([]PriceHistory, error)
}

var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrPlanInactive    = errors.New("plan_inactive")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrCodeTaken       = errors.New("plan_code_taken")
)
