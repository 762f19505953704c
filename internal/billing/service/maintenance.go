package service

import (
	"context"
	"errors"
	"time"

	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/providers/email"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func invoiceKey(inv invoicedomain.Invoice) string { return inv.ID.String() }

// FinalizeStaleDrafts finalizes DRAFT invoices older than the configured grace
// period.
func (s *Service) FinalizeStaleDrafts(ctx context.Context, now time.Time) (billingdomain.BatchResult, error) {
	cutoff := now.UTC().Add(-s.billingCfg.Get().Drafts.FinalizeAfter)
	drafts, err := s.invoicesvc.ListDraftsCreatedBefore(ctx, cutoff)
	if err != nil {
		return billingdomain.BatchResult{}, err
	}
	return runBatch(ctx, s.log, drafts, invoiceKey,
		func(ctx context.Context, inv invoicedomain.Invoice) (billingdomain.ItemStatus, error) {
			if _, err := s.FinalizeInvoice(ctx, inv.ID); err != nil {
				if errors.Is(err, invoicedomain.ErrInvoiceNotDraft) {
					return billingdomain.ItemSkipped, nil
				}
				return billingdomain.ItemFailed, err
			}
			return billingdomain.ItemSuccess, nil
		},
	), nil
}

// SendPaymentReminders emails every FINAL invoice that is overdue or due within
// the reminder window, at most once per cooldown.
func (s *Service) SendPaymentReminders(ctx context.Context, now time.Time) (billingdomain.BatchResult, error) {
	now = now.UTC()
	policy := s.billingCfg.Get().Reminders
	invoices, err := s.invoicesvc.ListReminderCandidates(ctx, now.Add(policy.DueSoonWindow), now.Add(-policy.Cooldown))
	if err != nil {
		return billingdomain.BatchResult{}, err
	}
	return runBatch(ctx, s.log, invoices, invoiceKey,
		func(ctx context.Context, inv invoicedomain.Invoice) (billingdomain.ItemStatus, error) {
			if inv.CustomerEmail == "" {
				return billingdomain.ItemFailed, billingdomain.ErrNoRecipient
			}
			err := s.email.SendTemplate(ctx, []string{inv.CustomerEmail}, email.TemplatePaymentReminder, map[string]any{
				"customer_name":  inv.CustomerName,
				"invoice_number": inv.InvoiceNumber,
				"total":          plandomain.FormatCents(inv.Total(), inv.Currency),
				"due_date":       inv.DueDate.Format(time.DateOnly),
				"overdue":        inv.IsOverdue(now),
			})
			if err != nil {
				return billingdomain.ItemFailed, err
			}
			if err := s.invoicesvc.RecordReminder(ctx, inv.ID, now); err != nil {
				return billingdomain.ItemFailed, err
			}
			return billingdomain.ItemSuccess, nil
		},
	), nil
}

// Cleanup archives old paid invoices and posted journal entries, purges
// drafts that were never finalized and purges old voided adjustments. Drafts
// carrying applied adjustments are kept since adjustment status only moves
// forward. Steps run independently; the returned
// error joins every step failure.
func (s *Service) Cleanup(ctx context.Context, now time.Time) (billingdomain.CleanupResult, error) {
	now = now.UTC()
	policy := s.billingCfg.Get().Cleanup
	result := billingdomain.CleanupResult{Errors: []string{}}
	var errs []error
	fail := func(step string, err error) {
		s.log.Warn("cleanup step failed", zap.String("step", step), zap.Error(err))
		result.Errors = append(result.Errors, step+": "+err.Error())
		errs = append(errs, err)
	}

	archiveBefore := now.Add(-policy.ArchiveAfter)
	if n, err := s.invoicesvc.ArchivePaidBefore(ctx, archiveBefore); err != nil {
		fail("archive_invoices", err)
	} else {
		result.ArchivedInvoices = n
	}
	if n, err := s.ledger.ArchivePostedBefore(ctx, archiveBefore); err != nil {
		fail("archive_journal_entries", err)
	} else {
		result.ArchivedJournalEntries = n
	}

	drafts, err := s.invoicesvc.ListDraftsCreatedBefore(ctx, now.Add(-policy.DraftPurgeAfter))
	if err != nil {
		fail("list_stale_drafts", err)
	}
	for _, draft := range drafts {
		var kept bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applied, err := s.adjustmentsvc.CountAppliedTx(ctx, tx, draft.ID)
			if err != nil {
				return err
			}
			if applied > 0 {
				kept = true
				return nil
			}
			return s.invoicesvc.DeleteDraftTx(ctx, tx, draft.ID)
		})
		if err != nil {
			fail("purge_draft "+draft.ID.String(), err)
			continue
		}
		if kept {
			s.log.Info("stale draft kept, adjustments applied", zap.String("invoice_id", draft.ID.String()))
			result.KeptDraftInvoices++
			continue
		}
		result.PurgedDraftInvoices++
	}

	if n, err := s.adjustmentsvc.PurgeVoided(ctx, now.Add(-policy.VoidPurgeAfter)); err != nil {
		fail("purge_voided_adjustments", err)
	} else {
		result.PurgedAdjustments = n
	}

	s.log.Info("cleanup finished",
		zap.Int64("archived_invoices", result.ArchivedInvoices),
		zap.Int64("archived_journal_entries", result.ArchivedJournalEntries),
		zap.Int64("purged_draft_invoices", result.PurgedDraftInvoices),
		zap.Int64("kept_draft_invoices", result.KeptDraftInvoices),
		zap.Int64("purged_adjustments", result.PurgedAdjustments),
	)
	return result, errors.Join(errs...)
}
