package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/invoice/format"
	"github.com/smallbiznis/billingcore/internal/proration"
	"github.com/smallbiznis/billingcore/pkg/db"
	"github.com/smallbiznis/billingcore/pkg/db/option"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"github.com/smallbiznis/billingcore/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var maxTaxPercentage = decimal.NewFromInt(100)

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

	invoicerepo repository.Repository[invoicedomain.Invoice]
	linerepo    repository.Repository[invoicedomain.InvoiceLineItem]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		linerepo:    repository.ProvideStore[invoicedomain.InvoiceLineItem](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.SubscriptionID == 0 {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidSubscription
	}

	filter := &invoicedomain.Invoice{SubscriptionID: req.SubscriptionID}
	if req.Status != nil {
		if !req.Status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = *req.Status
	}

	total, err := s.invoicerepo.Count(ctx, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page := req.Pagination.Normalize()
	items, err := s.invoicerepo.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{SortBy: "period_start", Allow: map[string]bool{"period_start": true}}),
		option.ApplyPagination(page),
	)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, normalize(*item))
	}

	return invoicedomain.ListInvoiceResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Invoices: invoices,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.InvoiceDetail, error) {
	invoice, err := s.GetTx(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	lines, err := s.listLines(ctx, s.db, invoice.ID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	return detail(*invoice, lines), nil
}

func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	item, err := s.invoicerepo.WithTrx(tx).FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	inv := normalize(*item)
	return &inv, nil
}

func (s *Service) ExistsForPeriodTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, start, end time.Time) (bool, error) {
	count, err := s.invoicerepo.WithTrx(tx).Count(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "subscription_id", Operator: option.EQ, Value: subscriptionID}),
		option.ApplyOperator(option.Condition{Field: "period_start", Operator: option.EQ, Value: start.UTC()}),
		option.ApplyOperator(option.Condition{Field: "period_end", Operator: option.EQ, Value: end.UTC()}),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateTx persists a DRAFT invoice and its lines. Totals are computed from
// the lines being written, never taken from the caller.
func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, draft invoicedomain.Draft) (*invoicedomain.InvoiceDetail, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	exists, err := s.ExistsForPeriodTx(ctx, tx, draft.SubscriptionID, draft.PeriodStart, draft.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, invoicedomain.ErrDuplicateInvoice
	}

	cfg := s.billingCfg.Get()
	now := s.clock.Now().UTC()

	seq, err := s.nextSequence(ctx, tx)
	if err != nil {
		return nil, err
	}
	template := cfg.InvoiceNumberTemplate
	if template == "" {
		template = format.DefaultNumberTemplate
	}
	number, err := format.InvoiceNumber(template, now, seq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoicedomain.ErrInvalidNumberTemplate, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = strings.ToUpper(cfg.Currency)
	}

	invoice := invoicedomain.Invoice{
		ID:              s.genID.Generate(),
		SubscriptionID:  draft.SubscriptionID,
		CustomerID:      draft.Customer.ID,
		InvoiceNumber:   number,
		Sequence:        seq,
		PeriodStart:     draft.PeriodStart.UTC(),
		PeriodEnd:       draft.PeriodEnd.UTC(),
		TaxPercentage:   draft.TaxPercentage.String(),
		Currency:        currency,
		Status:          invoicedomain.InvoiceStatusDraft,
		DueDate:         draft.DueDate.UTC(),
		CustomerName:    draft.Customer.Name,
		CustomerEmail:   draft.Customer.Email,
		CustomerCompany: draft.Customer.Company,
		CustomerAddress: draft.Customer.Address,
		CustomerTaxID:   draft.Customer.TaxID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.invoicerepo.WithTrx(tx).Create(ctx, &invoice); err != nil {
		switch {
		case db.IsDuplicateKeyOn(err, periodConstraint, periodColumns...):
			return nil, invoicedomain.ErrDuplicateInvoice
		case db.IsDuplicateKeyErr(err):
			return nil, fmt.Errorf("%w: %v", invoicedomain.ErrSequenceConflict, err)
		}
		return nil, err
	}

	lines := make([]*invoicedomain.InvoiceLineItem, 0, len(draft.Lines))
	for i := range draft.Lines {
		line := draft.Lines[i]
		line.ID = s.genID.Generate()
		line.InvoiceID = invoice.ID
		line.LineNumber = i + 1
		line.CreatedAt = now
		lines = append(lines, &line)
	}
	if err := s.linerepo.WithTrx(tx).BatchCreate(ctx, lines); err != nil {
		return nil, err
	}

	persisted, err := s.listLines(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	subtotal, tax := invoicedomain.Totals(persisted, draft.TaxPercentage)
	if _, err := s.invoicerepo.WithTrx(tx).Update(ctx, invoice.ID, map[string]any{
		"subtotal_cents": subtotal,
		"tax_cents":      tax,
	}); err != nil {
		return nil, err
	}
	invoice.SubtotalCents = subtotal
	invoice.TaxCents = tax

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("subscription_id", invoice.SubscriptionID.String()),
		zap.Int64("subtotal_cents", subtotal),
		zap.Int64("tax_cents", tax),
	)

	d := detail(invoice, persisted)
	return &d, nil
}

func (s *Service) FinalizeTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, at time.Time) (*invoicedomain.Invoice, error) {
	invoice, err := s.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return nil, invoicedomain.ErrInvoiceNotDraft
	}

	at = at.UTC()
	res := tx.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", id, invoicedomain.InvoiceStatusDraft).
		Updates(map[string]any{
			"status":       invoicedomain.InvoiceStatusFinal,
			"finalized_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, invoicedomain.ErrInvoiceNotDraft
	}

	invoice.Status = invoicedomain.InvoiceStatusFinal
	invoice.FinalizedAt = &at
	invoice.UpdatedAt = at
	return invoice, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, paidAt time.Time) (*invoicedomain.Invoice, error) {
	var paid *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.InvoiceStatusFinal {
			return invoicedomain.ErrInvoiceNotFinal
		}

		paidAt = paidAt.UTC()
		now := s.clock.Now().UTC()
		if _, err := s.invoicerepo.WithTrx(tx).Update(ctx, id, map[string]any{
			"status":     invoicedomain.InvoiceStatusPaid,
			"paid_at":    paidAt,
			"updated_at": now,
		}); err != nil {
			return err
		}
		invoice.Status = invoicedomain.InvoiceStatusPaid
		invoice.PaidAt = &paidAt
		invoice.UpdatedAt = now
		paid = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("invoice paid", zap.String("invoice_id", id.String()))
	return paid, nil
}

func (s *Service) SetJournalEntry(ctx context.Context, id, entryID snowflake.ID) error {
	_, err := s.invoicerepo.Update(ctx, id, map[string]any{"journal_entry_id": entryID})
	return err
}

func (s *Service) ListDraftsCreatedBefore(ctx context.Context, before time.Time) ([]invoicedomain.Invoice, error) {
	items, err := s.invoicerepo.Find(ctx, &invoicedomain.Invoice{Status: invoicedomain.InvoiceStatusDraft},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: before.UTC()}),
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
	)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// ListReminderCandidates returns open invoices due on or before dueBefore that
// were never reminded or last reminded before remindedBefore.
func (s *Service) ListReminderCandidates(ctx context.Context, dueBefore, remindedBefore time.Time) ([]invoicedomain.Invoice, error) {
	var items []*invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND archived = ? AND due_date <= ?", invoicedomain.InvoiceStatusFinal, false, dueBefore.UTC()).
		Where("last_reminder_at IS NULL OR last_reminder_at < ?", remindedBefore.UTC()).
		Order("due_date asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) RecordReminder(ctx context.Context, id snowflake.ID, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_reminder_at": at.UTC(),
			"reminder_count":   gorm.Expr("reminder_count + 1"),
			"updated_at":       s.clock.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (s *Service) ArchivePaidBefore(ctx context.Context, before time.Time) (int64, error) {
	now := s.clock.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status = ? AND archived = ? AND paid_at < ?", invoicedomain.InvoiceStatusPaid, false, before.UTC()).
		Updates(map[string]any{"archived": true, "archived_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}

// DeleteDraftTx hard-deletes a draft invoice and its lines.
func (s *Service) DeleteDraftTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	invoice, err := s.GetTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return invoicedomain.ErrInvoiceNotDraft
	}
	if err := tx.WithContext(ctx).Where("invoice_id = ?", id).Delete(&invoicedomain.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	return s.invoicerepo.WithTrx(tx).Delete(ctx, id)
}

const periodConstraint = "ux_invoice_subscription_period"

var periodColumns = []string{"invoices.subscription_id", "invoices.period_start", "invoices.period_end"}

func (s *Service) nextSequence(ctx context.Context, tx *gorm.DB) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(`SELECT COALESCE(MAX(sequence), 0) + 1 FROM invoices`).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Service) listLines(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLineItem, error) {
	var lines []invoicedomain.InvoiceLineItem
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("line_number asc").
		Find(&lines).Error
	return lines, err
}

func validateDraft(d invoicedomain.Draft) error {
	if d.SubscriptionID == 0 {
		return invoicedomain.ErrInvalidSubscription
	}
	if !proration.IsNormalized(d.PeriodStart) || !proration.IsNormalized(d.PeriodEnd) || !d.PeriodEnd.After(d.PeriodStart) {
		return invoicedomain.ErrInvalidPeriod
	}
	if !proration.IsNormalized(d.DueDate) {
		return invoicedomain.ErrInvalidDueDate
	}
	if d.TaxPercentage.IsNegative() || d.TaxPercentage.GreaterThan(maxTaxPercentage) {
		return invoicedomain.ErrInvalidTaxPercentage
	}
	if len(d.Lines) == 0 {
		return invoicedomain.ErrNoLineItems
	}
	return nil
}

func detail(inv invoicedomain.Invoice, lines []invoicedomain.InvoiceLineItem) invoicedomain.InvoiceDetail {
	if lines == nil {
		lines = []invoicedomain.InvoiceLineItem{}
	}
	return invoicedomain.InvoiceDetail{Invoice: inv, TotalCents: inv.Total(), LineItems: lines}
}

func flatten(items []*invoicedomain.Invoice) []invoicedomain.Invoice {
	out := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, normalize(*item))
		}
	}
	return out
}

// normalize pins date columns to UTC; some drivers load them in local time.
func normalize(inv invoicedomain.Invoice) invoicedomain.Invoice {
	inv.PeriodStart = inv.PeriodStart.UTC()
	inv.PeriodEnd = inv.PeriodEnd.UTC()
	inv.DueDate = inv.DueDate.UTC()
	return inv
}
