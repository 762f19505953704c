package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/clock"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Post writes a balanced journal entry for the event. Posting the same event
// twice returns the original entry with Duplicate set.
func (s *Service) Post(ctx context.Context, event ledgerdomain.BillingEvent) (ledgerdomain.EntryRef, error) {
	sourceType, counterAccount, err := classify(event.Type)
	if err != nil {
		return ledgerdomain.EntryRef{}, err
	}
	if event.SourceID == 0 {
		return ledgerdomain.EntryRef{}, ledgerdomain.ErrInvalidSourceID
	}
	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency == "" {
		return ledgerdomain.EntryRef{}, ledgerdomain.ErrInvalidCurrency
	}
	if event.OccurredAt.IsZero() {
		return ledgerdomain.EntryRef{}, ledgerdomain.ErrInvalidOccurredAt
	}

	now := s.clock.Now()
	entryID := s.genID.Generate()
	lines := buildLines(counterAccount, event.AmountCents, event.TaxCents)
	if len(lines) == 0 {
		return ledgerdomain.EntryRef{}, ledgerdomain.ErrNothingToPost
	}
	for i := range lines {
		lines[i].ID = s.genID.Generate()
		lines[i].JournalEntryID = entryID
		lines[i].CreatedAt = now
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return ledgerdomain.EntryRef{}, err
	}

	entry := ledgerdomain.JournalEntry{
		ID:             entryID,
		EventType:      event.Type,
		SourceType:     sourceType,
		SourceID:       event.SourceID,
		SubscriptionID: event.SubscriptionID,
		CustomerID:     event.CustomerID,
		Reference:      event.Reference(),
		Description:    event.Description,
		Currency:       currency,
		Status:         ledgerdomain.EntryStatusPosted,
		OccurredAt:     event.OccurredAt.UTC(),
		CreatedAt:      now,
	}

	ref := ledgerdomain.EntryRef{ID: entryID, Reference: entry.Reference}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).Create(&entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var existing ledgerdomain.JournalEntry
			if err := tx.Where("reference = ?", entry.Reference).Take(&existing).Error; err != nil {
				return err
			}
			ref.ID = existing.ID
			ref.Duplicate = true
			return nil
		}
		return tx.Create(&lines).Error
	})
	if err != nil {
		return ledgerdomain.EntryRef{}, err
	}

	if ref.Duplicate {
		s.log.Info("journal entry already posted", zap.String("reference", ref.Reference))
	} else {
		s.log.Info("journal entry posted",
			zap.String("reference", ref.Reference),
			zap.String("entry_id", ref.ID.String()),
			zap.Int64("amount_cents", event.AmountCents),
			zap.Int64("tax_cents", event.TaxCents),
		)
	}
	return ref, nil
}

func (s *Service) ListBySource(ctx context.Context, sourceType ledgerdomain.SourceType, sourceID snowflake.ID) ([]ledgerdomain.JournalEntry, []ledgerdomain.JournalLine, error) {
	var entries []ledgerdomain.JournalEntry
	if err := s.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("occurred_at asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return entries, nil, nil
	}

	ids := make([]snowflake.ID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	var lines []ledgerdomain.JournalLine
	if err := s.db.WithContext(ctx).
		Where("journal_entry_id IN ?", ids).
		Order("id asc").
		Find(&lines).Error; err != nil {
		return nil, nil, err
	}
	return entries, lines, nil
}

// ArchivePostedBefore flags posted entries older than before; nothing is deleted.
func (s *Service) ArchivePostedBefore(ctx context.Context, before time.Time) (int64, error) {
	now := s.clock.Now()
	res := s.db.WithContext(ctx).
		Model(&ledgerdomain.JournalEntry{}).
		Where("status = ? AND archived = ? AND occurred_at < ?", ledgerdomain.EntryStatusPosted, false, before).
		Updates(map[string]any{"archived": true, "archived_at": now})
	return res.RowsAffected, res.Error
}

func classify(t ledgerdomain.EventType) (ledgerdomain.SourceType, ledgerdomain.AccountCode, error) {
	switch t {
	case ledgerdomain.EventInvoiceIssued:
		return ledgerdomain.SourceTypeInvoice, ledgerdomain.AccountRevenueSubscription, nil
	case ledgerdomain.EventAdjustmentApplied:
		return ledgerdomain.SourceTypeAdjustment, ledgerdomain.AccountAdjustments, nil
	default:
		return "", "", ledgerdomain.ErrInvalidEventType
	}
}

// buildLines posts receivable against the counter account and tax payable.
// Signs pick the side: a negative amount (credit) reverses the directions.
func buildLines(counter ledgerdomain.AccountCode, amount, tax int64) []ledgerdomain.JournalLine {
	lines := make([]ledgerdomain.JournalLine, 0, 3)
	lines = appendLine(lines, ledgerdomain.AccountAccountsReceivable, amount+tax, ledgerdomain.DirectionDebit)
	lines = appendLine(lines, counter, amount, ledgerdomain.DirectionCredit)
	lines = appendLine(lines, ledgerdomain.AccountTaxPayable, tax, ledgerdomain.DirectionCredit)
	if len(lines) < 2 {
		return nil
	}
	return lines
}

func appendLine(lines []ledgerdomain.JournalLine, account ledgerdomain.AccountCode, signed int64, positiveSide ledgerdomain.Direction) []ledgerdomain.JournalLine {
	if signed == 0 {
		return lines
	}
	direction := positiveSide
	if signed < 0 {
		signed = -signed
		direction = opposite(positiveSide)
	}
	return append(lines, ledgerdomain.JournalLine{Account: account, Direction: direction, AmountCents: signed})
}

func opposite(d ledgerdomain.Direction) ledgerdomain.Direction {
	if d == ledgerdomain.DirectionDebit {
		return ledgerdomain.DirectionCredit
	}
	return ledgerdomain.DirectionDebit
}
