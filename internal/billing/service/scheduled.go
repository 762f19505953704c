package service

import (
	"context"
	"time"

	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemActor = "system"

// ProcessScheduledPlanChanges applies every deferred plan change dated on or
// before asOf, each in its own transaction.
func (s *Service) ProcessScheduledPlanChanges(ctx context.Context, asOf time.Time) (billingdomain.BatchResult, error) {
	asOf = proration.NormalizeDate(asOf)
	segments, err := s.subscriptionrepo.ListDuePlanChanges(ctx, s.db, asOf)
	if err != nil {
		return billingdomain.BatchResult{}, err
	}
	result := runBatch(ctx, s.log, segments,
		func(seg subscriptiondomain.PlanHistory) string { return seg.SubscriptionID.String() },
		s.processPlanChange,
	)
	s.log.Info("scheduled plan changes processed",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) processPlanChange(ctx context.Context, segment subscriptiondomain.PlanHistory) (billingdomain.ItemStatus, error) {
	sub, err := s.loadSubscription(ctx, s.db, segment.SubscriptionID)
	if err != nil {
		return billingdomain.ItemFailed, err
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return billingdomain.ItemFailed, billingdomain.ErrSubscriptionNotActive
	}
	if segment.NewPlanID == nil {
		return billingdomain.ItemFailed, plandomain.ErrPlanNotFound
	}
	newPlan, err := s.plansvc.GetByID(ctx, *segment.NewPlanID)
	if err != nil {
		return billingdomain.ItemFailed, err
	}
	oldPlan, err := s.planOrPlaceholder(ctx, sub)
	if err != nil {
		return billingdomain.ItemFailed, err
	}

	status := billingdomain.ItemSuccess
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.subscriptionrepo.FindPendingChange(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if current == nil || current.ID != segment.ID {
			status = billingdomain.ItemSkipped
			return nil
		}
		return s.applyChangeTx(ctx, tx, sub, current, oldPlan, newPlan)
	})
	if err != nil {
		return billingdomain.ItemFailed, err
	}
	return status, nil
}

// applyChangeTx switches the subscription to the plan of a deferred segment.
// When the change date falls inside a period already invoiced at the old
// price, the difference for the remaining days becomes a PENDING adjustment.
func (s *Service) applyChangeTx(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	segment *subscriptiondomain.PlanHistory,
	oldPlan *plandomain.Plan,
	newPlan *plandomain.Plan,
) error {
	now := s.now()
	date := segment.EffectiveFrom
	fields := map[string]any{"processed": true, "processed_at": now}

	period, err := sub.CurrentPeriod()
	if err != nil {
		return err
	}
	if !date.Before(period.Start) && date.Before(period.End) {
		invoiced, err := s.invoicesvc.ExistsForPeriodTx(ctx, tx, sub.ID, period.Start, period.End)
		if err != nil {
			return err
		}
		if invoiced {
			calc, err := proration.CalculatePlanChangeProration(
				proration.PlanPrice{Name: oldPlan.Name, MonthlyPriceCents: sub.MonthlyPriceCents},
				newPlan.Price(), date, period.Start, period.End)
			if err != nil {
				return err
			}
			raw, err := calculation(calc)
			if err != nil {
				return err
			}
			fields["proration_amount_cents"] = calc.NetCents
			fields["calculation"] = raw
			if calc.NetCents != 0 {
				adj, err := s.prorationAdjustment(ctx, tx, sub, segment, calc, systemActor)
				if err != nil {
					return err
				}
				fields["adjustment_id"] = adj.ID
			}
		}
	}
	if err := s.subscriptionrepo.UpdateSegment(ctx, tx, segment.ID, fields); err != nil {
		return err
	}

	if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{
		"plan_id":               newPlan.ID,
		"monthly_price_cents":   newPlan.MonthlyPriceCents,
		"last_plan_change_date": date,
		"updated_at":            now,
	}); err != nil {
		return err
	}
	sub.PlanID = newPlan.ID
	sub.MonthlyPriceCents = newPlan.MonthlyPriceCents
	sub.LastPlanChangeDate = timePtr(date)
	sub.UpdatedAt = now

	s.log.Info("scheduled plan change applied",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_history_id", segment.ID.String()),
		zap.String("new_plan_id", newPlan.ID.String()),
	)
	return nil
}

// ProcessScheduledCancellations cancels every PENDING_CANCELLATION subscription
// whose scheduled date is on or before asOf.
func (s *Service) ProcessScheduledCancellations(ctx context.Context, asOf time.Time) (billingdomain.BatchResult, error) {
	asOf = proration.NormalizeDate(asOf)
	subs, err := s.subscriptionrepo.ListDueCancellations(ctx, s.db, asOf)
	if err != nil {
		return billingdomain.BatchResult{}, err
	}
	result := runBatch(ctx, s.log, subs,
		func(sub subscriptiondomain.Subscription) string { return sub.ID.String() },
		s.processCancellation,
	)
	s.log.Info("scheduled cancellations processed",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) processCancellation(ctx context.Context, sub subscriptiondomain.Subscription) (billingdomain.ItemStatus, error) {
	if sub.ScheduledCancellationDate == nil {
		return billingdomain.ItemFailed, billingdomain.ErrInvalidCancellationDate
	}
	date := *sub.ScheduledCancellationDate
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.subscriptionrepo.FindOpenSegment(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if open != nil {
			if err := s.subscriptionrepo.UpdateSegment(ctx, tx, open.ID, map[string]any{"effective_to": date}); err != nil {
				return err
			}
		}
		segment, err := s.subscriptionrepo.FindPendingCancellation(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if segment != nil {
			if err := s.subscriptionrepo.UpdateSegment(ctx, tx, segment.ID, map[string]any{
				"processed":    true,
				"processed_at": now,
			}); err != nil {
				return err
			}
		}
		return s.subscriptionrepo.UpdateVersioned(ctx, tx, &sub, map[string]any{
			"status":       subscriptiondomain.SubscriptionStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	})
	if err != nil {
		return billingdomain.ItemFailed, err
	}
	return billingdomain.ItemSuccess, nil
}
