package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	"github.com/smallbiznis/billingcore/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type invoiceInput struct {
	sub            *subscriptiondomain.Subscription
	plan           *plandomain.Plan
	customer       customerdomain.Customer
	periodStart    time.Time
	periodEnd      time.Time
	dueDate        time.Time
	taxPercentage  decimal.Decimal
	includePending bool
}

// GenerateInvoice builds the recurring line for the period plus, optionally,
// every pending adjustment effective by the period end. The duplicate check,
// invoice insert and adjustment application share one transaction.
func (s *Service) GenerateInvoice(ctx context.Context, req billingdomain.GenerateInvoiceRequest) (*invoicedomain.InvoiceDetail, error) {
	sub, err := s.loadSubscription(ctx, s.db, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.Status.Billable() {
		return nil, billingdomain.ErrSubscriptionNotBillable
	}
	if !proration.IsNormalized(req.PeriodStart) || !proration.IsNormalized(req.PeriodEnd) ||
		!req.PeriodEnd.After(req.PeriodStart) {
		return nil, billingdomain.ErrInvalidPeriod
	}

	in, err := s.invoiceInput(ctx, sub, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	in.includePending = req.IncludePendingAdjustments
	if req.DueDate != nil {
		in.dueDate = req.DueDate.UTC()
	}
	if req.TaxPercentage != nil {
		in.taxPercentage = *req.TaxPercentage
	}

	var created *invoicedomain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.generateInvoiceTx(ctx, tx, in)
		if err != nil {
			return err
		}
		if req.Finalize {
			inv, err := s.invoicesvc.FinalizeTx(ctx, tx, d.ID, s.now())
			if err != nil {
				return err
			}
			d.Invoice = *inv
		}
		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.Finalize {
		s.afterIssue(ctx, &created.Invoice)
	}
	return created, nil
}

// FinalizeInvoice moves a DRAFT to FINAL, then posts it to the journal and
// notifies the customer.
func (s *Service) FinalizeInvoice(ctx context.Context, invoiceID snowflake.ID) (*invoicedomain.InvoiceDetail, error) {
	var finalized *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.invoicesvc.FinalizeTx(ctx, tx, invoiceID, s.now())
		if err != nil {
			return err
		}
		finalized = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterIssue(ctx, finalized)

	d, err := s.invoicesvc.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// invoiceInput loads everything that lives outside the invoice transaction.
func (s *Service) invoiceInput(ctx context.Context, sub *subscriptiondomain.Subscription, start, end time.Time) (invoiceInput, error) {
	plan, err := s.planOrPlaceholder(ctx, sub)
	if err != nil {
		return invoiceInput{}, err
	}
	customer, err := s.customersvc.GetByID(ctx, sub.CustomerID)
	if err != nil {
		return invoiceInput{}, err
	}
	due, err := proration.NextBillingAnchor(end, 1)
	if err != nil {
		return invoiceInput{}, billingdomain.ErrInvalidPeriod
	}
	return invoiceInput{
		sub:            sub,
		plan:           plan,
		customer:       customer,
		periodStart:    start,
		periodEnd:      end,
		dueDate:        due,
		taxPercentage:  s.billingCfg.Get().TaxPercentage(),
		includePending: true,
	}, nil
}

func (s *Service) generateInvoiceTx(ctx context.Context, tx *gorm.DB, in invoiceInput) (*invoicedomain.InvoiceDetail, error) {
	sub := in.sub
	exists, err := s.invoicesvc.ExistsForPeriodTx(ctx, tx, sub.ID, in.periodStart, in.periodEnd)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, billingdomain.ErrDuplicateInvoice
	}

	amount, err := s.recurringAmountTx(ctx, tx, sub, in.periodStart, in.periodEnd)
	if err != nil {
		return nil, err
	}
	name := in.plan.Name
	if name == "" {
		name = "Subscription"
	}
	recurring, err := invoicedomain.NewInvoiceLineItem(invoicedomain.LineItemSubscription,
		fmt.Sprintf("%s (%s to %s)", name, in.periodStart.Format(time.DateOnly), in.periodEnd.Format(time.DateOnly)),
		1, amount, true)
	if err != nil {
		return nil, err
	}
	lines := []invoicedomain.InvoiceLineItem{recurring.WithServicePeriod(in.periodStart, in.periodEnd)}

	var pending []adjustmentdomain.Adjustment
	if in.includePending {
		pending, err = s.adjustmentsvc.ListPendingTx(ctx, tx, sub.ID, in.periodEnd)
		if err != nil {
			return nil, err
		}
	}
	for _, adj := range pending {
		line, err := adjustmentLine(adj)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	d, err := s.invoicesvc.CreateTx(ctx, tx, invoicedomain.Draft{
		SubscriptionID: sub.ID,
		Customer: invoicedomain.CustomerSnapshot{
			ID:      in.customer.ID,
			Name:    in.customer.Name,
			Email:   in.customer.Email,
			Company: in.customer.CompanyName,
			Address: in.customer.Address,
			TaxID:   in.customer.TaxID,
		},
		PeriodStart:   in.periodStart,
		PeriodEnd:     in.periodEnd,
		DueDate:       in.dueDate,
		TaxPercentage: in.taxPercentage,
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		ids := lo.Map(pending, func(a adjustmentdomain.Adjustment, _ int) snowflake.ID { return a.ID })
		if err := s.adjustmentsvc.MarkAppliedTx(ctx, tx, ids, d.ID, s.now()); err != nil {
			return nil, err
		}
	}

	s.log.Info("invoice generated",
		zap.String("invoice_id", d.ID.String()),
		zap.String("invoice_number", d.InvoiceNumber),
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("adjustments", len(pending)),
		zap.Int64("total_cents", d.TotalCents),
	)
	return d, nil
}

// recurringAmountTx is the plan charge for [start, end). A plan changed with
// proration inside the period is billed at the price in effect at the start;
// the proration adjustment carries the difference.
func (s *Service) recurringAmountTx(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, start, end time.Time) (int64, error) {
	price := sub.MonthlyPriceCents

	segments, err := s.subscriptionrepo.ListSegments(ctx, tx, sub.ID)
	if err != nil {
		return 0, err
	}
	changed, ok := lo.Find(segments, func(seg subscriptiondomain.PlanHistory) bool {
		return seg.ChangeType == subscriptiondomain.ChangeTypePlanChange &&
			seg.ProrationType == subscriptiondomain.ProrationTypeProrated &&
			seg.Processed &&
			!seg.EffectiveFrom.Before(start) && seg.EffectiveFrom.Before(end)
	})
	if ok && len(changed.Calculation) > 0 {
		var calc proration.PlanChangeResult
		if err := json.Unmarshal(changed.Calculation, &calc); err != nil {
			return 0, err
		}
		price = calc.OldPlan.MonthlyPriceCents
	}

	cycleEnd, err := proration.NextBillingAnchor(start, 1)
	if err != nil {
		return 0, err
	}
	if end.Equal(cycleEnd) {
		return price, nil
	}
	days := proration.DaysBetween(start, end)
	return proration.RoundDiv(price*days, proration.DaysBetween(start, cycleEnd)), nil
}

func adjustmentLine(adj adjustmentdomain.Adjustment) (invoicedomain.InvoiceLineItem, error) {
	typ := invoicedomain.LineItemAdjustment
	if adj.ReasonCode.IsProration() {
		typ = invoicedomain.LineItemProration
	}
	description := adj.Description
	if description == "" {
		description = fmt.Sprintf("Adjustment (%s)", adj.ReasonCode)
	}
	line, err := invoicedomain.NewInvoiceLineItem(typ, description, 1, adj.AmountCents, adj.Taxable)
	if err != nil {
		return invoicedomain.InvoiceLineItem{}, err
	}
	line.AdjustmentID = idPtr(adj.ID)
	return line, nil
}

// afterIssue posts a finalized invoice to the journal and emails it. Failures
// are logged and leave the invoice as issued.
func (s *Service) afterIssue(ctx context.Context, inv *invoicedomain.Invoice) {
	log := s.log.With(zap.String("invoice_id", inv.ID.String()), zap.String("invoice_number", inv.InvoiceNumber))

	occurred := s.now()
	if inv.FinalizedAt != nil {
		occurred = *inv.FinalizedAt
	}
	ref, err := s.ledger.Post(ctx, ledgerdomain.BillingEvent{
		Type:           ledgerdomain.EventInvoiceIssued,
		SourceID:       inv.ID,
		SubscriptionID: inv.SubscriptionID,
		CustomerID:     inv.CustomerID,
		Currency:       inv.Currency,
		AmountCents:    inv.SubtotalCents,
		TaxCents:       inv.TaxCents,
		Description:    "Invoice " + inv.InvoiceNumber,
		OccurredAt:     occurred,
	})
	switch {
	case errors.Is(err, ledgerdomain.ErrNothingToPost):
		log.Debug("zero invoice not posted")
	case err != nil:
		log.Warn("journal posting failed", zap.Error(err))
	default:
		if err := s.invoicesvc.SetJournalEntry(ctx, inv.ID, ref.ID); err != nil {
			log.Warn("journal entry link failed", zap.Error(err))
		} else {
			inv.JournalEntryID = idPtr(ref.ID)
		}
	}

	if inv.CustomerEmail == "" {
		return
	}
	err = s.email.SendTemplate(ctx, []string{inv.CustomerEmail}, email.TemplateInvoiceIssued, map[string]any{
		"customer_name":  inv.CustomerName,
		"invoice_number": inv.InvoiceNumber,
		"period_start":   inv.PeriodStart.Format(time.DateOnly),
		"period_end":     inv.PeriodEnd.Format(time.DateOnly),
		"subtotal":       plandomain.FormatCents(inv.SubtotalCents, inv.Currency),
		"tax":            plandomain.FormatCents(inv.TaxCents, inv.Currency),
		"total":          plandomain.FormatCents(inv.Total(), inv.Currency),
		"due_date":       inv.DueDate.Format(time.DateOnly),
	})
	if err != nil {
		log.Warn("invoice email failed", zap.Error(err))
	}
}
