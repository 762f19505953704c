package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/clock"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	plansvc     plandomain.Service
	customersvc customerdomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	PlanSvc     plandomain.Service
	CustomerSvc customerdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		plansvc:     p.PlanSvc,
		customersvc: p.CustomerSvc,
	}
}

// Create opens an ACTIVE subscription with its INITIAL plan segment.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.Subscription, error) {
	if _, err := s.customersvc.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) || errors.Is(err, customerdomain.ErrInvalidID) {
			return nil, subscriptiondomain.ErrInvalidCustomer
		}
		return nil, err
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, plandomain.ErrPlanInactive
	}

	anchor := clock.Today(s.clock)
	if req.StartDate != nil {
		if !proration.IsNormalized(*req.StartDate) {
			return nil, subscriptiondomain.ErrInvalidAnchor
		}
		anchor = req.StartDate.UTC()
	}

	sub, err := subscriptiondomain.NewSubscription(s.genID.Generate(), req.CustomerID, plan.ID, plan.MonthlyPriceCents, anchor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	planID := plan.ID
	segment := &subscriptiondomain.PlanHistory{
		ID:             s.genID.Generate(),
		SubscriptionID: sub.ID,
		NewPlanID:      &planID,
		ChangeType:     subscriptiondomain.ChangeTypeInitial,
		EffectiveFrom:  anchor,
		ProrationType:  subscriptiondomain.ProrationTypeImmediate,
		Reason:         "subscription created",
		Processed:      true,
		ProcessedAt:    &now,
		CreatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		if err := s.repo.InsertSegment(ctx, tx, segment); err != nil {
			return fmt.Errorf("insert plan segment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("customer_id", sub.CustomerID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.Time("anchor", anchor),
	)
	return sub, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) History(ctx context.Context, id snowflake.ID) ([]subscriptiondomain.PlanHistory, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListSegments(ctx, s.db, id)
}
