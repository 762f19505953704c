package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangePlan moves an ACTIVE subscription to another plan. A change inside the
// current period is prorated immediately and leaves a PENDING adjustment for
// the net amount. A change dated at or after the period end is recorded as a
// pending segment and applied by ProcessScheduledPlanChanges.
func (s *Service) ChangePlan(ctx context.Context, req billingdomain.ChangePlanRequest) (*billingdomain.ChangePlanResult, error) {
	sub, err := s.loadSubscription(ctx, s.db, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return nil, billingdomain.ErrSubscriptionNotActive
	}
	if err := sub.CheckVersion(req.ExpectedVersion); err != nil {
		return nil, err
	}

	newPlan, err := s.plansvc.GetByID(ctx, req.NewPlanID)
	if err != nil {
		return nil, err
	}
	if !newPlan.Active {
		return nil, plandomain.ErrPlanInactive
	}
	if newPlan.ID == sub.PlanID {
		return nil, billingdomain.ErrSamePlan
	}
	oldPlan, err := s.planOrPlaceholder(ctx, sub)
	if err != nil {
		return nil, err
	}

	pending, err := s.subscriptionrepo.FindPendingChange(ctx, s.db, sub.ID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, billingdomain.ErrPendingPlanChange
	}

	period, err := sub.CurrentPeriod()
	if err != nil {
		return nil, err
	}
	effective := s.today()
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	if !proration.IsNormalized(effective) || effective.Before(period.Start) {
		return nil, billingdomain.ErrInvalidEffectiveDate
	}

	result := &billingdomain.ChangePlanResult{
		OldPlan:       summarize(oldPlan, sub.MonthlyPriceCents),
		NewPlan:       summarize(newPlan, newPlan.MonthlyPriceCents),
		EffectiveDate: effective,
	}

	oldPrice := proration.PlanPrice{Name: oldPlan.Name, MonthlyPriceCents: sub.MonthlyPriceCents}
	reason := strings.TrimSpace(req.Reason)

	if effective.Before(period.End) {
		calc, err := proration.CalculatePlanChangeProration(oldPrice, newPlan.Price(), effective, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		result.ProrationType = subscriptiondomain.ProrationTypeProrated
		result.Proration = &calc

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.changeImmediately(ctx, tx, sub, newPlan, calc, reason, req.ActorID, result)
		})
		if err != nil {
			return nil, err
		}
	} else {
		result.ProrationType = subscriptiondomain.ProrationTypeNextCycle

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.scheduleChange(ctx, tx, sub, newPlan, effective, reason, result)
		})
		if err != nil {
			return nil, err
		}
	}

	result.Subscription = sub
	s.log.Info("plan changed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("old_plan_id", oldPlan.ID.String()),
		zap.String("new_plan_id", newPlan.ID.String()),
		zap.String("proration_type", string(result.ProrationType)),
		zap.Time("effective_date", effective),
	)
	return result, nil
}

func (s *Service) changeImmediately(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	newPlan *plandomain.Plan,
	calc proration.PlanChangeResult,
	reason string,
	actor string,
	result *billingdomain.ChangePlanResult,
) error {
	effective := calc.ChangeDate
	now := s.now()

	open, err := s.subscriptionrepo.FindOpenSegment(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if open == nil {
		return subscriptiondomain.ErrNoOpenSegment
	}
	if effective.Before(open.EffectiveFrom) {
		return billingdomain.ErrInvalidEffectiveDate
	}
	if err := s.subscriptionrepo.UpdateSegment(ctx, tx, open.ID, map[string]any{"effective_to": effective}); err != nil {
		return err
	}

	raw, err := calculation(calc)
	if err != nil {
		return err
	}
	segment := &subscriptiondomain.PlanHistory{
		ID:                   s.genID.Generate(),
		SubscriptionID:       sub.ID,
		OldPlanID:            idPtr(sub.PlanID),
		NewPlanID:            idPtr(newPlan.ID),
		ChangeType:           subscriptiondomain.ChangeTypePlanChange,
		EffectiveFrom:        effective,
		ProrationType:        subscriptiondomain.ProrationTypeProrated,
		ProrationAmountCents: calc.NetCents,
		Calculation:          raw,
		Reason:               reason,
		Processed:            true,
		ProcessedAt:          timePtr(now),
		CreatedAt:            now,
	}

	if calc.NetCents != 0 {
		adj, err := s.prorationAdjustment(ctx, tx, sub, segment, calc, actor)
		if err != nil {
			return err
		}
		segment.AdjustmentID = idPtr(adj.ID)
		result.AdjustmentID = idPtr(adj.ID)
	}
	if err := s.subscriptionrepo.InsertSegment(ctx, tx, segment); err != nil {
		return err
	}
	result.SegmentID = segment.ID

	if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{
		"plan_id":               newPlan.ID,
		"monthly_price_cents":   newPlan.MonthlyPriceCents,
		"last_plan_change_date": effective,
		"updated_at":            now,
	}); err != nil {
		return err
	}
	sub.PlanID = newPlan.ID
	sub.MonthlyPriceCents = newPlan.MonthlyPriceCents
	sub.LastPlanChangeDate = timePtr(effective)
	sub.UpdatedAt = now
	return nil
}

// prorationAdjustment records the net of a plan change as a CHARGE (upgrade)
// or CREDIT (downgrade) linked to its segment.
func (s *Service) prorationAdjustment(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	segment *subscriptiondomain.PlanHistory,
	calc proration.PlanChangeResult,
	actor string,
) (*adjustmentdomain.Adjustment, error) {
	typ := adjustmentdomain.AdjustmentTypeCharge
	if calc.NetCents < 0 {
		typ = adjustmentdomain.AdjustmentTypeCredit
	}
	description := fmt.Sprintf("Plan change from %s to %s, %d of %d days",
		calc.OldPlan.Name, calc.NewPlan.Name, calc.RemainingDays, calc.Period.Days)

	adj, err := adjustmentdomain.NewAdjustment(s.genID.Generate(), sub.ID, calc.NetCents, typ,
		adjustmentdomain.ReasonPlanChange, description, calc.ChangeDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	adj.Taxable = true
	adj.PlanHistoryID = idPtr(segment.ID)
	adj.CreatedBy = strings.TrimSpace(actor)
	adj.Metadata["credit_cents"] = calc.CreditCents
	adj.Metadata["charge_cents"] = calc.ChargeCents
	adj.Metadata["remaining_days"] = calc.RemainingDays
	adj.CreatedAt = now
	adj.UpdatedAt = now

	if err := s.adjustmentsvc.InsertTx(ctx, tx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

// scheduleChange closes the open segment at the effective date and opens an
// unprocessed segment for the new plan. The subscription keeps its plan until
// the change is processed.
func (s *Service) scheduleChange(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	newPlan *plandomain.Plan,
	effective time.Time,
	reason string,
	result *billingdomain.ChangePlanResult,
) error {
	now := s.now()

	open, err := s.subscriptionrepo.FindOpenSegment(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if open == nil {
		return subscriptiondomain.ErrNoOpenSegment
	}
	if err := s.subscriptionrepo.UpdateSegment(ctx, tx, open.ID, map[string]any{"effective_to": effective}); err != nil {
		return err
	}

	segment := &subscriptiondomain.PlanHistory{
		ID:             s.genID.Generate(),
		SubscriptionID: sub.ID,
		OldPlanID:      idPtr(sub.PlanID),
		NewPlanID:      idPtr(newPlan.ID),
		ChangeType:     subscriptiondomain.ChangeTypePlanChange,
		EffectiveFrom:  effective,
		ProrationType:  subscriptiondomain.ProrationTypeNextCycle,
		Reason:         reason,
		Processed:      false,
		CreatedAt:      now,
	}
	if err := s.subscriptionrepo.InsertSegment(ctx, tx, segment); err != nil {
		return err
	}
	result.SegmentID = segment.ID

	if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{"updated_at": now}); err != nil {
		return err
	}
	sub.UpdatedAt = now
	return nil
}
