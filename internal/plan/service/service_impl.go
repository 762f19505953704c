package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	"github.com/smallbiznis/billingcore/pkg/db"
	"github.com/smallbiznis/billingcore/pkg/db/option"
	"github.com/smallbiznis/billingcore/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder

	planrepo    repository.Repository[plandomain.Plan]
	historyrepo repository.Repository[plandomain.PriceHistory]
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("plan.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,

		planrepo:    repository.ProvideStore[plandomain.Plan](p.DB),
		historyrepo: repository.ProvideStore[plandomain.PriceHistory](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req plandomain.ListPlanRequest) ([]plandomain.PlanView, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "monthly_price_cents", OrderBy: "asc", Allow: map[string]bool{"monthly_price_cents": true}}),
	}
	if !req.IncludeInactive {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: true}))
	}

	plans, err := s.planrepo.Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}

	return lo.Map(plans, func(p *plandomain.Plan, _ int) plandomain.PlanView {
		return plandomain.PlanView{Plan: *p, FormattedPrice: p.FormattedPrice()}
	}), nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*plandomain.Plan, error) {
	if id == 0 {
		return nil, plandomain.ErrPlanNotFound
	}
	plan, err := s.planrepo.FindOne(ctx, &plandomain.Plan{ID: id})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (*plandomain.Plan, error) {
	plan, err := plandomain.NewPlan(s.genID.Generate(), req.Name, req.MonthlyPriceCents, s.billingCfg.Get().Currency)
	if err != nil {
		return nil, err
	}
	plan.Description = strings.TrimSpace(req.Description)
	if req.AutoRenew != nil {
		plan.AutoRenew = *req.AutoRenew
	}
	now := s.clock.Now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.planrepo.WithTrx(tx).Create(ctx, plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return plandomain.ErrCodeTaken
			}
			return err
		}
		return s.historyrepo.WithTrx(tx).Create(ctx, &plandomain.PriceHistory{
			ID:                s.genID.Generate(),
			PlanID:            plan.ID,
			MonthlyPriceCents: plan.MonthlyPriceCents,
			EffectiveFrom:     proration.NormalizeDate(now),
			CreatedAt:         now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("code", plan.Code))
	return plan, nil
}

// UpdatePrice appends to the price history. Existing subscriptions keep their
// price snapshot until their next plan change.
func (s *Service) UpdatePrice(ctx context.Context, req plandomain.UpdatePriceRequest) (*plandomain.Plan, error) {
	if req.MonthlyPriceCents < 0 {
		return nil, plandomain.ErrInvalidPrice
	}
	now := s.clock.Now()
	effective := proration.NormalizeDate(now)
	if req.EffectiveFrom != nil {
		effective = proration.NormalizeDate(*req.EffectiveFrom)
	}

	var updated *plandomain.Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planrepo.WithTrx(tx).FindOne(ctx, &plandomain.Plan{ID: req.PlanID})
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrPlanNotFound
		}

		if _, err := s.planrepo.WithTrx(tx).Update(ctx, plan.ID, map[string]any{
			"monthly_price_cents": req.MonthlyPriceCents,
			"updated_at":          now,
		}); err != nil {
			return fmt.Errorf("update plan price: %w", err)
		}
		if err := s.historyrepo.WithTrx(tx).Create(ctx, &plandomain.PriceHistory{
			ID:                s.genID.Generate(),
			PlanID:            plan.ID,
			MonthlyPriceCents: req.MonthlyPriceCents,
			EffectiveFrom:     effective,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		plan.MonthlyPriceCents = req.MonthlyPriceCents
		plan.UpdatedAt = now
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) PriceHistory(ctx context.Context, planID snowflake.ID) ([]plandomain.PriceHistory, error) {
	rows, err := s.historyrepo.Find(ctx, &plandomain.PriceHistory{PlanID: planID},
		option.WithSortBy(option.QuerySortBy{SortBy: "effective_from", OrderBy: "asc", Allow: map[string]bool{"effective_from": true}}),
	)
	if err != nil {
		return nil, err
	}
	return lo.FromSlicePtr(rows), nil
}
