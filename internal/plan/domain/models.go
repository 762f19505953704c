// Package domain contains plan catalog models.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billingcore/internal/proration"
)

// Plan is a flat monthly price point a subscription can be on.
type Plan struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Code              string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name              string       `gorm:"type:text;not null" json:"name"`
	Description       string       `gorm:"type:text" json:"description,omitempty"`
	MonthlyPriceCents int64        `gorm:"not null" json:"monthly_price_cents"`
	Currency          string       `gorm:"type:text;not null" json:"currency"`
	Active            bool         `gorm:"not null" json:"active"`
	AutoRenew         bool         `gorm:"not null" json:"auto_renew"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// PriceHistory records every price a plan has carried.
type PriceHistory struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	PlanID            snowflake.ID `gorm:"not null;index" json:"plan_id"`
	MonthlyPriceCents int64        `gorm:"not null" json:"monthly_price_cents"`
	EffectiveFrom     time.Time    `gorm:"not null" json:"effective_from"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
}

func (PriceHistory) TableName() string { return "plan_price_history" }

// NewPlan validates and builds an active plan. The code is derived from the name.
func NewPlan(id snowflake.ID, name string, monthlyPriceCents int64, currency string) (*Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if monthlyPriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}
	return &Plan{
		ID:                id,
		Code:              slug.Make(name),
		Name:              name,
		MonthlyPriceCents: monthlyPriceCents,
		Currency:          currency,
		Active:            true,
		AutoRenew:         true,
	}, nil
}

func (p Plan) Price() proration.PlanPrice {
	return proration.PlanPrice{Name: p.Name, MonthlyPriceCents: p.MonthlyPriceCents}
}

// FormattedPrice renders the monthly price as "INR 14.99".
func (p Plan) FormattedPrice() string {
	return FormatCents(p.MonthlyPriceCents, p.Currency)
}

func FormatCents(cents int64, currency string) string {
	return currency + " " + decimal.New(cents, -2).StringFixed(2)
}
