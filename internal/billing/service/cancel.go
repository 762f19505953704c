package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CancelSubscription ends a subscription now (with a prorated credit for the
// unused days) or schedules it to end with the current period.
func (s *Service) CancelSubscription(ctx context.Context, req billingdomain.CancelRequest) (*billingdomain.CancelResult, error) {
	sub, err := s.loadSubscription(ctx, s.db, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	immediate := lo.FromPtrOr(req.Immediate, true)
	if sub.Status.IsTerminal() {
		return nil, billingdomain.ErrAlreadyCancelled
	}
	if !immediate && sub.Status == subscriptiondomain.SubscriptionStatusPendingCancellation {
		return nil, billingdomain.ErrAlreadyCancelled
	}
	if err := sub.CheckVersion(req.ExpectedVersion); err != nil {
		return nil, err
	}

	period, err := sub.CurrentPeriod()
	if err != nil {
		return nil, err
	}
	plan, err := s.planOrPlaceholder(ctx, sub)
	if err != nil {
		return nil, err
	}

	result := &billingdomain.CancelResult{Immediate: immediate}
	reason := strings.TrimSpace(req.Reason)

	if immediate {
		date := s.today()
		if req.CancellationDate != nil {
			date = *req.CancellationDate
		}
		if !proration.IsNormalized(date) || date.Before(period.Start) || date.After(period.End) {
			return nil, billingdomain.ErrInvalidCancellationDate
		}
		calc, err := proration.CalculateCancellationProration(
			proration.PlanPrice{Name: plan.Name, MonthlyPriceCents: sub.MonthlyPriceCents},
			date, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		result.EffectiveDate = date
		result.Proration = &calc

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.discardPending(ctx, tx, sub); err != nil {
				return err
			}
			return s.cancelImmediately(ctx, tx, sub, calc, reason, req.ActorID, result)
		})
		if err != nil {
			return nil, err
		}
	} else {
		result.EffectiveDate = period.End

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.discardPending(ctx, tx, sub); err != nil {
				return err
			}
			return s.scheduleCancellation(ctx, tx, sub, period, reason, result)
		})
		if err != nil {
			return nil, err
		}
	}

	result.Subscription = sub
	s.log.Info("subscription cancelled",
		zap.String("subscription_id", sub.ID.String()),
		zap.Bool("immediate", immediate),
		zap.Time("effective_date", result.EffectiveDate),
		zap.String("status", string(sub.Status)),
	)
	return result, nil
}

// discardPending drops an unprocessed plan change (reopening the segment it
// had closed) and any scheduled cancellation.
func (s *Service) discardPending(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	change, err := s.subscriptionrepo.FindPendingChange(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if change != nil {
		if err := s.subscriptionrepo.DeleteSegment(ctx, tx, change.ID); err != nil {
			return err
		}
		prior, err := s.subscriptionrepo.FindSegmentEndingAt(ctx, tx, sub.ID, change.EffectiveFrom)
		if err != nil {
			return err
		}
		if prior != nil {
			if err := s.subscriptionrepo.UpdateSegment(ctx, tx, prior.ID, map[string]any{"effective_to": nil}); err != nil {
				return err
			}
		}
		s.log.Info("pending plan change discarded",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("plan_history_id", change.ID.String()),
		)
	}

	cancellation, err := s.subscriptionrepo.FindPendingCancellation(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if cancellation != nil {
		return s.subscriptionrepo.DeleteSegment(ctx, tx, cancellation.ID)
	}
	return nil
}

func (s *Service) cancelImmediately(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	calc proration.CancellationResult,
	reason string,
	actor string,
	result *billingdomain.CancelResult,
) error {
	date := calc.CancellationDate
	now := s.now()

	open, err := s.subscriptionrepo.FindOpenSegment(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if open == nil {
		return subscriptiondomain.ErrNoOpenSegment
	}
	if date.Before(open.EffectiveFrom) {
		return billingdomain.ErrInvalidCancellationDate
	}
	if err := s.subscriptionrepo.UpdateSegment(ctx, tx, open.ID, map[string]any{"effective_to": date}); err != nil {
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
		ChangeType:           subscriptiondomain.ChangeTypeCancellation,
		EffectiveFrom:        date,
		EffectiveTo:          timePtr(date),
		ProrationType:        subscriptiondomain.ProrationTypeImmediate,
		ProrationAmountCents: -calc.CreditCents,
		Calculation:          raw,
		Reason:               reason,
		Processed:            true,
		ProcessedAt:          timePtr(now),
		CreatedAt:            now,
	}

	if calc.CreditCents > 0 {
		description := fmt.Sprintf("Cancellation credit, %d unused of %d days",
			calc.Credit.UsageDays, calc.Period.Days)
		adj, err := adjustmentdomain.NewAdjustment(s.genID.Generate(), sub.ID, calc.CreditCents,
			adjustmentdomain.AdjustmentTypeCredit, adjustmentdomain.ReasonCancellation, description, date)
		if err != nil {
			return err
		}
		adj.Taxable = true
		adj.PlanHistoryID = idPtr(segment.ID)
		adj.CreatedBy = strings.TrimSpace(actor)
		adj.Metadata["used_cents"] = calc.UsedCents
		adj.Metadata["drift_cents"] = calc.DriftCents
		adj.CreatedAt = now
		adj.UpdatedAt = now
		if err := s.adjustmentsvc.InsertTx(ctx, tx, adj); err != nil {
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
		"status":                      subscriptiondomain.SubscriptionStatusCancelled,
		"cancelled_at":                now,
		"cancellation_reason":         reason,
		"scheduled_cancellation_date": nil,
		"updated_at":                  now,
	}); err != nil {
		return err
	}
	sub.Status = subscriptiondomain.SubscriptionStatusCancelled
	sub.CancelledAt = timePtr(now)
	sub.CancellationReason = reason
	sub.ScheduledCancellationDate = nil
	sub.UpdatedAt = now
	return nil
}

// scheduleCancellation marks the subscription PENDING_CANCELLATION and records
// a zero-length cancellation segment at the period end.
func (s *Service) scheduleCancellation(
	ctx context.Context,
	tx *gorm.DB,
	sub *subscriptiondomain.Subscription,
	period proration.Period,
	reason string,
	result *billingdomain.CancelResult,
) error {
	now := s.now()
	segment := &subscriptiondomain.PlanHistory{
		ID:             s.genID.Generate(),
		SubscriptionID: sub.ID,
		OldPlanID:      idPtr(sub.PlanID),
		ChangeType:     subscriptiondomain.ChangeTypeCancellation,
		EffectiveFrom:  period.End,
		EffectiveTo:    timePtr(period.End),
		ProrationType:  subscriptiondomain.ProrationTypeEndOfPeriod,
		Reason:         reason,
		Processed:      false,
		CreatedAt:      now,
	}
	if err := s.subscriptionrepo.InsertSegment(ctx, tx, segment); err != nil {
		return err
	}
	result.SegmentID = segment.ID

	if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{
		"status":                      subscriptiondomain.SubscriptionStatusPendingCancellation,
		"scheduled_cancellation_date": period.End,
		"cancellation_reason":         reason,
		"updated_at":                  now,
	}); err != nil {
		return err
	}
	sub.Status = subscriptiondomain.SubscriptionStatusPendingCancellation
	sub.ScheduledCancellationDate = timePtr(period.End)
	sub.CancellationReason = reason
	sub.UpdatedAt = now
	return nil
}
