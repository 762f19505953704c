package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"github.com/smallbiznis/billingcore/pkg/db/option"
	"github.com/smallbiznis/billingcore/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder

	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	Ledger          ledgerdomain.Poster
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder

	adjustmentrepo  repository.Repository[adjustmentdomain.Adjustment]
	subscriptionsvc subscriptiondomain.Service
	invoicesvc      invoicedomain.Service
	ledger          ledgerdomain.Poster
}

func NewService(p ServiceParam) adjustmentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("adjustment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,

		adjustmentrepo:  repository.ProvideStore[adjustmentdomain.Adjustment](p.DB),
		subscriptionsvc: p.SubscriptionSvc,
		invoicesvc:      p.InvoiceSvc,
		ledger:          p.Ledger,
	}
}

func (s *Service) Create(ctx context.Context, req adjustmentdomain.CreateRequest) (*adjustmentdomain.Adjustment, error) {
	sub, err := s.subscriptionsvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, sub, req)
}

func (s *Service) create(ctx context.Context, sub *subscriptiondomain.Subscription, req adjustmentdomain.CreateRequest) (*adjustmentdomain.Adjustment, error) {
	effective := clock.Today(s.clock)
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}

	adj, err := adjustmentdomain.NewAdjustment(s.genID.Generate(), sub.ID, req.AmountCents, req.Type, req.ReasonCode, req.Description, effective)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	adj.Taxable = req.Taxable
	adj.PlanHistoryID = req.PlanHistoryID
	adj.CreatedBy = strings.TrimSpace(req.CreatedBy)
	for k, v := range req.Metadata {
		adj.Metadata[k] = v
	}
	adj.CreatedAt = now
	adj.UpdatedAt = now

	if err := s.adjustmentrepo.Create(ctx, adj); err != nil {
		return nil, err
	}

	s.log.Info("adjustment created",
		zap.String("adjustment_id", adj.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("type", string(adj.Type)),
		zap.String("reason", string(adj.ReasonCode)),
		zap.Int64("amount_cents", adj.AmountCents),
	)

	if req.AutoApply {
		s.autoApply(ctx, sub, adj)
	}
	return adj, nil
}

// autoApply posts the adjustment to the journal and marks it APPLIED. A ledger
// failure leaves the adjustment PENDING so the next invoice picks it up.
func (s *Service) autoApply(ctx context.Context, sub *subscriptiondomain.Subscription, adj *adjustmentdomain.Adjustment) {
	now := s.clock.Now().UTC()
	ref, err := s.ledger.Post(ctx, ledgerdomain.BillingEvent{
		Type:           ledgerdomain.EventAdjustmentApplied,
		SourceID:       adj.ID,
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Currency:       s.billingCfg.Get().Currency,
		AmountCents:    adj.AmountCents,
		Description:    adj.Description,
		OccurredAt:     now,
	})
	if err != nil {
		s.log.Warn("ledger posting failed, adjustment left pending",
			zap.String("adjustment_id", adj.ID.String()), zap.Error(err))
		return
	}

	res := s.db.WithContext(ctx).
		Model(&adjustmentdomain.Adjustment{}).
		Where("id = ? AND status = ?", adj.ID, adjustmentdomain.StatusPending).
		Updates(map[string]any{
			"status":           adjustmentdomain.StatusApplied,
			"applied_at":       now,
			"journal_entry_id": ref.ID,
			"updated_at":       now,
		})
	if res.Error != nil {
		s.log.Warn("mark adjustment applied failed",
			zap.String("adjustment_id", adj.ID.String()), zap.Error(res.Error))
		return
	}
	adj.Status = adjustmentdomain.StatusApplied
	adj.AppliedAt = &now
	adj.JournalEntryID = &ref.ID
	adj.UpdatedAt = now
}

func (s *Service) CreateGoodwillCredit(ctx context.Context, req adjustmentdomain.GoodwillCreditRequest) (*adjustmentdomain.Adjustment, error) {
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = "Goodwill credit"
	}
	return s.Create(ctx, adjustmentdomain.CreateRequest{
		SubscriptionID: req.SubscriptionID,
		AmountCents:    req.AmountCents,
		Type:           adjustmentdomain.AdjustmentTypeCredit,
		ReasonCode:     adjustmentdomain.ReasonGoodwill,
		Description:    description,
		AutoApply:      req.AutoApply,
		CreatedBy:      req.CreatedBy,
	})
}

// CreateServiceCredit compensates an outage from the subscription's daily rate
// (monthly price / 30). Credits are capped at one month's price unless NoCap is set.
func (s *Service) CreateServiceCredit(ctx context.Context, req adjustmentdomain.ServiceCreditRequest) (*adjustmentdomain.Adjustment, error) {
	sub, err := s.subscriptionsvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	daily := proration.DailyRate(sub.MonthlyPriceCents)
	metadata := map[string]any{
		"policy":           string(req.Policy),
		"daily_rate_cents": daily,
	}

	var amount int64
	var description string
	switch req.Policy {
	case adjustmentdomain.ServiceCreditDays:
		if req.Units <= 0 {
			return nil, adjustmentdomain.ErrInvalidAmount
		}
		amount = daily * req.Units
		description = fmt.Sprintf("Service credit for %d day(s) of outage", req.Units)
		metadata["units"] = req.Units
	case adjustmentdomain.ServiceCreditHours:
		if req.Units <= 0 {
			return nil, adjustmentdomain.ErrInvalidAmount
		}
		amount = proration.RoundDiv(daily*req.Units, 24)
		description = fmt.Sprintf("Service credit for %d hour(s) of outage", req.Units)
		metadata["units"] = req.Units
	case adjustmentdomain.ServiceCreditPercentage:
		pct, err := parsePercentage(req.Percentage)
		if err != nil {
			return nil, err
		}
		amount = percentOf(sub.MonthlyPriceCents, pct)
		description = fmt.Sprintf("Service credit of %s%% of monthly price", pct.String())
		metadata["percentage"] = pct.String()
	default:
		return nil, adjustmentdomain.ErrInvalidPolicy
	}

	if !req.NoCap && amount > sub.MonthlyPriceCents {
		amount = sub.MonthlyPriceCents
		metadata["capped"] = true
	}
	if strings.TrimSpace(req.Description) != "" {
		description = req.Description
	}

	return s.create(ctx, sub, adjustmentdomain.CreateRequest{
		AmountCents: amount,
		Type:        adjustmentdomain.AdjustmentTypeCredit,
		ReasonCode:  adjustmentdomain.ReasonServiceOutage,
		Description: description,
		AutoApply:   req.AutoApply,
		CreatedBy:   req.CreatedBy,
		Metadata:    metadata,
	})
}

// CreatePromotionalDiscount takes either a percentage of the monthly price or a fixed amount.
func (s *Service) CreatePromotionalDiscount(ctx context.Context, req adjustmentdomain.PromotionalDiscountRequest) (*adjustmentdomain.Adjustment, error) {
	sub, err := s.subscriptionsvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	hasPct := strings.TrimSpace(req.Percentage) != ""
	if hasPct == (req.AmountCents != 0) {
		return nil, adjustmentdomain.ErrInvalidAmount
	}

	metadata := map[string]any{}
	amount := req.AmountCents
	description := "Promotional discount"
	if hasPct {
		pct, err := parsePercentage(req.Percentage)
		if err != nil {
			return nil, err
		}
		amount = percentOf(sub.MonthlyPriceCents, pct)
		metadata["percentage"] = pct.String()
		description = fmt.Sprintf("Promotional discount (%s%%)", pct.String())
	}
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		metadata["promo_code"] = code
		description = fmt.Sprintf("%s - %s", description, code)
	}
	if strings.TrimSpace(req.Description) != "" {
		description = req.Description
	}

	return s.create(ctx, sub, adjustmentdomain.CreateRequest{
		AmountCents: amount,
		Type:        adjustmentdomain.AdjustmentTypeCredit,
		ReasonCode:  adjustmentdomain.ReasonPromotional,
		Description: description,
		CreatedBy:   req.CreatedBy,
		Metadata:    metadata,
	})
}

// CreateLateFee charges a fixed fee or a percentage of the overdue invoice total,
// never less than the minimum.
func (s *Service) CreateLateFee(ctx context.Context, req adjustmentdomain.LateFeeRequest) (*adjustmentdomain.Adjustment, error) {
	sub, err := s.subscriptionsvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoicesvc.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.SubscriptionID != sub.ID {
		return nil, adjustmentdomain.ErrInvalidSubscription
	}
	if !invoice.IsOverdue(clock.Today(s.clock)) {
		return nil, adjustmentdomain.ErrInvoiceNotOverdue
	}

	policy := s.billingCfg.Get().LateFee
	fixed := lo.FromPtrOr(req.FixedCents, policy.FixedCents)
	minimum := lo.FromPtrOr(req.MinimumCents, policy.MinimumCents)
	pctRaw := lo.FromPtrOr(req.Percentage, policy.Percentage)

	amount := fixed
	if amount <= 0 {
		pct, err := parsePercentage(pctRaw)
		if err != nil {
			return nil, err
		}
		amount = percentOf(invoice.Total(), pct)
	}
	if amount < minimum {
		amount = minimum
	}

	return s.create(ctx, sub, adjustmentdomain.CreateRequest{
		AmountCents: amount,
		Type:        adjustmentdomain.AdjustmentTypeCharge,
		ReasonCode:  adjustmentdomain.ReasonLateFee,
		Description: fmt.Sprintf("Late fee for invoice %s", invoice.InvoiceNumber),
		CreatedBy:   req.CreatedBy,
		Metadata: map[string]any{
			"invoice_id":     invoice.ID.String(),
			"invoice_number": invoice.InvoiceNumber,
		},
	})
}

func (s *Service) Void(ctx context.Context, req adjustmentdomain.VoidRequest) (*adjustmentdomain.Adjustment, error) {
	var voided *adjustmentdomain.Adjustment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		adj, err := s.getTx(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if adj.Status != adjustmentdomain.StatusPending {
			return adjustmentdomain.ErrNotPending
		}

		now := s.clock.Now().UTC()
		reason := strings.TrimSpace(req.Reason)
		res := tx.WithContext(ctx).
			Model(&adjustmentdomain.Adjustment{}).
			Where("id = ? AND status = ?", adj.ID, adjustmentdomain.StatusPending).
			Updates(map[string]any{
				"status":      adjustmentdomain.StatusVoided,
				"voided_at":   now,
				"void_reason": reason,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return adjustmentdomain.ErrNotPending
		}
		adj.Status = adjustmentdomain.StatusVoided
		adj.VoidedAt = &now
		adj.VoidReason = reason
		adj.UpdatedAt = now
		voided = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("adjustment voided", zap.String("adjustment_id", voided.ID.String()))
	return voided, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*adjustmentdomain.Adjustment, error) {
	return s.getTx(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req adjustmentdomain.ListRequest) ([]adjustmentdomain.Adjustment, error) {
	if req.SubscriptionID == 0 {
		return nil, adjustmentdomain.ErrInvalidSubscription
	}
	filter := &adjustmentdomain.Adjustment{SubscriptionID: req.SubscriptionID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	items, err := s.adjustmentrepo.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{SortBy: "effective_date", OrderBy: "asc", Allow: map[string]bool{"effective_date": true}}),
	)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// Summary aggregates adjustments with effective_date in [From, To]. Voided
// adjustments are counted per status but excluded from the money totals.
func (s *Service) Summary(ctx context.Context, req adjustmentdomain.SummaryRequest) (adjustmentdomain.Summary, error) {
	if req.SubscriptionID == 0 {
		return adjustmentdomain.Summary{}, adjustmentdomain.ErrInvalidSubscription
	}

	var opts []option.QueryOption
	if req.From != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "effective_date", Operator: option.GTE, Value: req.From.UTC()}))
	}
	if req.To != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "effective_date", Operator: option.LTE, Value: req.To.UTC()}))
	}
	items, err := s.adjustmentrepo.Find(ctx, &adjustmentdomain.Adjustment{SubscriptionID: req.SubscriptionID}, opts...)
	if err != nil {
		return adjustmentdomain.Summary{}, err
	}
	adjustments := flatten(items)

	live := lo.Filter(adjustments, func(a adjustmentdomain.Adjustment, _ int) bool {
		return a.Status != adjustmentdomain.StatusVoided
	})
	credits := lo.SumBy(live, func(a adjustmentdomain.Adjustment) int64 { return min(a.AmountCents, 0) })
	charges := lo.SumBy(live, func(a adjustmentdomain.Adjustment) int64 { return max(a.AmountCents, 0) })

	summary := adjustmentdomain.Summary{
		SubscriptionID:    req.SubscriptionID,
		From:              req.From,
		To:                req.To,
		Count:             len(adjustments),
		TotalCreditsCents: -credits,
		TotalChargesCents: charges,
		NetCents:          charges + credits,
		ByStatus:          map[adjustmentdomain.Status]adjustmentdomain.Bucket{},
		ByReason:          map[adjustmentdomain.ReasonCode]adjustmentdomain.Bucket{},
	}
	for status, group := range lo.GroupBy(adjustments, func(a adjustmentdomain.Adjustment) adjustmentdomain.Status { return a.Status }) {
		summary.ByStatus[status] = bucket(group)
	}
	for reason, group := range lo.GroupBy(live, func(a adjustmentdomain.Adjustment) adjustmentdomain.ReasonCode { return a.ReasonCode }) {
		summary.ByReason[reason] = bucket(group)
	}
	return summary, nil
}

func (s *Service) InsertTx(ctx context.Context, tx *gorm.DB, adj *adjustmentdomain.Adjustment) error {
	if adj == nil {
		return adjustmentdomain.ErrInvalidAmount
	}
	now := s.clock.Now().UTC()
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = now
	}
	adj.UpdatedAt = now
	return s.adjustmentrepo.WithTrx(tx).Create(ctx, adj)
}

func (s *Service) ListPendingTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, upTo time.Time) ([]adjustmentdomain.Adjustment, error) {
	var items []*adjustmentdomain.Adjustment
	err := tx.WithContext(ctx).
		Where("subscription_id = ? AND status = ? AND effective_date <= ?", subscriptionID, adjustmentdomain.StatusPending, upTo.UTC()).
		Order("effective_date asc, created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) MarkAppliedTx(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	at = at.UTC()
	res := tx.WithContext(ctx).
		Model(&adjustmentdomain.Adjustment{}).
		Where("id IN ? AND status = ?", ids, adjustmentdomain.StatusPending).
		Updates(map[string]any{
			"status":     adjustmentdomain.StatusApplied,
			"invoice_id": invoiceID,
			"applied_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return adjustmentdomain.ErrNotPending
	}
	return nil
}

// CountAppliedTx counts adjustments applied to invoiceID.
func (s *Service) CountAppliedTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&adjustmentdomain.Adjustment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, adjustmentdomain.StatusApplied).
		Count(&n).Error
	return n, err
}

func (s *Service) PurgeVoided(ctx context.Context, voidedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND voided_at < ?", adjustmentdomain.StatusVoided, voidedBefore.UTC()).
		Delete(&adjustmentdomain.Adjustment{})
	return res.RowsAffected, res.Error
}

func (s *Service) getTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*adjustmentdomain.Adjustment, error) {
	if id == 0 {
		return nil, adjustmentdomain.ErrNotFound
	}
	item, err := s.adjustmentrepo.WithTrx(tx).FindOne(ctx, &adjustmentdomain.Adjustment{ID: id})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, adjustmentdomain.ErrNotFound
	}
	adj := normalize(*item)
	return &adj, nil
}

func parsePercentage(raw string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.Join(adjustmentdomain.ErrInvalidPercentage, err)
	}
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return decimal.Zero, adjustmentdomain.ErrInvalidPercentage
	}
	return pct, nil
}

func percentOf(amountCents int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).Mul(pct).Div(hundred).Round(0).IntPart()
}

func bucket(group []adjustmentdomain.Adjustment) adjustmentdomain.Bucket {
	return adjustmentdomain.Bucket{
		Count:       len(group),
		AmountCents: lo.SumBy(group, func(a adjustmentdomain.Adjustment) int64 { return a.AmountCents }),
	}
}

func flatten(items []*adjustmentdomain.Adjustment) []adjustmentdomain.Adjustment {
	out := make([]adjustmentdomain.Adjustment, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, normalize(*item))
		}
	}
	return out
}

func normalize(a adjustmentdomain.Adjustment) adjustmentdomain.Adjustment {
	a.EffectiveDate = a.EffectiveDate.UTC()
	if a.Metadata == nil {
		a.Metadata = datatypes.JSONMap{}
	}
	return a
}
