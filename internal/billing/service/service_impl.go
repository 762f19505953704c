package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder

	SubscriptionRepo subscriptiondomain.Repository
	PlanSvc          plandomain.Service
	CustomerSvc      customerdomain.Service
	InvoiceSvc       invoicedomain.Service
	AdjustmentSvc    adjustmentdomain.Service
	Ledger           ledgerdomain.Service
	Email            email.Provider
}

// Service coordinates plan changes, cancellations and invoicing. Every state
// change runs in one database transaction. Collaborator reads that do not take
// a tx are done before the transaction opens; journal posting and email
// happen after commit and never fail the operation.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder

	subscriptionrepo subscriptiondomain.Repository
	plansvc          plandomain.Service
	customersvc      customerdomain.Service
	invoicesvc       invoicedomain.Service
	adjustmentsvc    adjustmentdomain.Service
	ledger           ledgerdomain.Service
	email            email.Provider
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,

		subscriptionrepo: p.SubscriptionRepo,
		plansvc:          p.PlanSvc,
		customersvc:      p.CustomerSvc,
		invoicesvc:       p.InvoiceSvc,
		adjustmentsvc:    p.AdjustmentSvc,
		ledger:           p.Ledger,
		email:            p.Email,
	}
}

func (s *Service) loadSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if id == 0 {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	sub, err := s.subscriptionrepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// planOrPlaceholder resolves a plan for display. Subscriptions keep their own
// price, so a plan missing from the catalog still yields a usable summary.
func (s *Service) planOrPlaceholder(ctx context.Context, sub *subscriptiondomain.Subscription) (*plandomain.Plan, error) {
	plan, err := s.plansvc.GetByID(ctx, sub.PlanID)
	if errors.Is(err, plandomain.ErrPlanNotFound) {
		return &plandomain.Plan{
			ID:                sub.PlanID,
			MonthlyPriceCents: sub.MonthlyPriceCents,
			Currency:          s.billingCfg.Get().Currency,
			AutoRenew:         true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) today() time.Time {
	return clock.Today(s.clock)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func summarize(plan *plandomain.Plan, priceCents int64) billingdomain.PlanSummary {
	return billingdomain.PlanSummary{
		ID:                plan.ID,
		Code:              plan.Code,
		Name:              plan.Name,
		MonthlyPriceCents: priceCents,
		FormattedPrice:    plandomain.FormatCents(priceCents, plan.Currency),
	}
}

func calculation(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func idPtr(id snowflake.ID) *snowflake.ID {
	return &id
}

func timePtr(t time.Time) *time.Time {
	return &t
}
