package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Direction represents debit or credit postings.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type AccountCode string

const (
	AccountAccountsReceivable  AccountCode = "accounts_receivable"
	AccountRevenueSubscription AccountCode = "revenue_subscription"
	AccountTaxPayable          AccountCode = "tax_payable"
	AccountAdjustments         AccountCode = "adjustments"
)

type EventType string

const (
	EventInvoiceIssued     EventType = "invoice.issued"
	EventAdjustmentApplied EventType = "adjustment.applied"
)

type SourceType string

const (
	SourceTypeInvoice    SourceType = "invoice"
	SourceTypeAdjustment SourceType = "adjustment"
)

type EntryStatus string

const (
	EntryStatusPosted EntryStatus = "POSTED"
)

// JournalEntry captures the immutable header for a billing event.
type JournalEntry struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	EventType      EventType    `gorm:"type:text;not null"`
	SourceType     SourceType   `gorm:"type:text;not null;index"`
	SourceID       snowflake.ID `gorm:"not null;index"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	CustomerID     snowflake.ID `gorm:"index"`
	Reference      string       `gorm:"type:text;not null;uniqueIndex"`
	Description    string       `gorm:"type:text"`
	Currency       string       `gorm:"type:text;not null"`
	Status         EntryStatus  `gorm:"type:text;not null"`
	Archived       bool         `gorm:"not null;index"`
	ArchivedAt     *time.Time
	OccurredAt     time.Time `gorm:"not null;index"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (JournalEntry) TableName() string { return "journal_entries" }

// JournalLine is a double-entry posting line.
type JournalLine struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	JournalEntryID snowflake.ID `gorm:"not null;index"`
	Account        AccountCode  `gorm:"type:text;not null"`
	Direction      Direction    `gorm:"type:text;not null"`
	AmountCents    int64        `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (JournalLine) TableName() string { return "journal_lines" }

// ValidateBalanced checks that debits equal credits and no line is negative.
func ValidateBalanced(lines []JournalLine) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}
	var debit, credit int64
	for _, line := range lines {
		if line.AmountCents < 0 {
			return ErrInvalidLineAmount
		}
		switch line.Direction {
		case DirectionDebit:
			debit += line.AmountCents
		case DirectionCredit:
			credit += line.AmountCents
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
