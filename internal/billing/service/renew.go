package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RenewSubscription issues the invoice that is due as of asOf. Billing is in
// advance and the anchor is the start of the current period:
//
//   - the current period has no invoice yet: invoice it;
//   - the current period ended on or before asOf: apply a due plan change,
//     advance the anchor by one period and invoice the new period;
//   - otherwise nothing is due.
//
// Subscriptions pending cancellation are never rolled past their end date and
// plans without auto-renew expire at the period end.
func (s *Service) RenewSubscription(ctx context.Context, subscriptionID snowflake.ID, asOf time.Time) (billingdomain.RenewResult, error) {
	asOf = proration.NormalizeDate(asOf)

	sub, err := s.loadSubscription(ctx, s.db, subscriptionID)
	if err != nil {
		return billingdomain.RenewResult{}, err
	}
	res := billingdomain.RenewResult{SubscriptionID: sub.ID, Anchor: sub.BillingCycleAnchor}
	if !sub.Status.Billable() {
		return res, billingdomain.ErrSubscriptionNotBillable
	}
	if sub.BillingCycleAnchor.After(asOf) {
		return skip(res, "period not started"), nil
	}

	period, err := sub.CurrentPeriod()
	if err != nil {
		return res, err
	}
	plan, err := s.planOrPlaceholder(ctx, sub)
	if err != nil {
		return res, err
	}

	pending, err := s.subscriptionrepo.FindPendingChange(ctx, s.db, sub.ID)
	if err != nil {
		return res, err
	}
	var pendingPlan *plandomain.Plan
	if pending != nil && pending.NewPlanID != nil &&
		!pending.EffectiveFrom.After(period.End) && !pending.EffectiveFrom.After(asOf) {
		if pendingPlan, err = s.plansvc.GetByID(ctx, *pending.NewPlanID); err != nil {
			return res, err
		}
	}

	in, err := s.invoiceInput(ctx, sub, period.Start, period.End)
	if err != nil {
		return res, err
	}

	var issued *invoicedomain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoiced, err := s.invoicesvc.ExistsForPeriodTx(ctx, tx, sub.ID, period.Start, period.End)
		if err != nil {
			return err
		}

		target := period
		if invoiced {
			next := period.End
			if next.After(asOf) {
				res = skip(res, "not due")
				return nil
			}
			if sub.Status == subscriptiondomain.SubscriptionStatusPendingCancellation &&
				sub.ScheduledCancellationDate != nil && !sub.ScheduledCancellationDate.After(next) {
				res = skip(res, "cancellation scheduled")
				return nil
			}
			if !plan.AutoRenew {
				if err := s.expireTx(ctx, tx, sub, next); err != nil {
					return err
				}
				res.Outcome = billingdomain.RenewExpired
				return nil
			}

			if pendingPlan != nil {
				if err := s.applyChangeTx(ctx, tx, sub, pending, plan, pendingPlan); err != nil {
					return err
				}
				in.plan = pendingPlan
			}
			if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{
				"billing_cycle_anchor": next,
				"updated_at":           s.now(),
			}); err != nil {
				return err
			}
			sub.BillingCycleAnchor = next

			if target, err = proration.BillingPeriod(next); err != nil {
				return err
			}
			exists, err := s.invoicesvc.ExistsForPeriodTx(ctx, tx, sub.ID, target.Start, target.End)
			if err != nil {
				return err
			}
			if exists {
				res = skip(res, "already invoiced")
				return nil
			}
		} else if pendingPlan != nil && !pending.EffectiveFrom.After(period.Start) {
			if err := s.applyChangeTx(ctx, tx, sub, pending, plan, pendingPlan); err != nil {
				return err
			}
			in.plan = pendingPlan
		}

		in.sub = sub
		in.periodStart, in.periodEnd = target.Start, target.End
		if in.dueDate, err = proration.NextBillingAnchor(target.End, 1); err != nil {
			return err
		}
		d, err := s.generateInvoiceTx(ctx, tx, in)
		if err != nil {
			return err
		}
		inv, err := s.invoicesvc.FinalizeTx(ctx, tx, d.ID, s.now())
		if err != nil {
			return err
		}
		d.Invoice = *inv
		issued = d

		res.Outcome = billingdomain.RenewInvoiced
		res.InvoiceID = idPtr(d.ID)
		res.PeriodStart, res.PeriodEnd = target.Start, target.End
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Anchor = sub.BillingCycleAnchor

	if issued != nil {
		s.afterIssue(ctx, &issued.Invoice)
	}
	if res.Outcome != billingdomain.RenewSkipped {
		s.log.Info("subscription renewed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("outcome", string(res.Outcome)),
			zap.Time("anchor", res.Anchor),
		)
	}
	return res, nil
}

// RenewDueSubscriptions runs RenewSubscription for every billable subscription
// whose anchor is on or before asOf.
func (s *Service) RenewDueSubscriptions(ctx context.Context, asOf time.Time) (billingdomain.BatchResult, error) {
	asOf = proration.NormalizeDate(asOf)
	subs, err := s.subscriptionrepo.ListBillable(ctx, s.db, asOf)
	if err != nil {
		return billingdomain.BatchResult{}, err
	}
	return runBatch(ctx, s.log, subs,
		func(sub subscriptiondomain.Subscription) string { return sub.ID.String() },
		func(ctx context.Context, sub subscriptiondomain.Subscription) (billingdomain.ItemStatus, error) {
			res, err := s.RenewSubscription(ctx, sub.ID, asOf)
			if err != nil {
				return billingdomain.ItemFailed, err
			}
			if res.Outcome == billingdomain.RenewSkipped {
				return billingdomain.ItemSkipped, nil
			}
			return billingdomain.ItemSuccess, nil
		},
	), nil
}

// expireTx ends a non-renewing subscription at the period end. A plan change
// scheduled for the next period no longer applies.
func (s *Service) expireTx(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, at time.Time) error {
	if err := s.discardPending(ctx, tx, sub); err != nil {
		return err
	}
	open, err := s.subscriptionrepo.FindOpenSegment(ctx, tx, sub.ID)
	if err != nil {
		return err
	}
	if open != nil {
		if err := s.subscriptionrepo.UpdateSegment(ctx, tx, open.ID, map[string]any{"effective_to": at}); err != nil {
			return err
		}
	}
	now := s.now()
	if err := s.subscriptionrepo.UpdateVersioned(ctx, tx, sub, map[string]any{
		"status":     subscriptiondomain.SubscriptionStatusExpired,
		"updated_at": now,
	}); err != nil {
		return err
	}
	sub.Status = subscriptiondomain.SubscriptionStatusExpired
	sub.UpdatedAt = now
	return nil
}

func skip(res billingdomain.RenewResult, reason string) billingdomain.RenewResult {
	res.Outcome = billingdomain.RenewSkipped
	res.Reason = reason
	return res
}
