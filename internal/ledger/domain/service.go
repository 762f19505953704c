package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingEvent is the structured payload posted for each money-affecting event.
type BillingEvent struct {
	Type           EventType
	SourceID       snowflake.ID
	SubscriptionID snowflake.ID
	CustomerID     snowflake.ID
	Currency       string
	// AmountCents is the pre-tax signed amount (invoice subtotal or adjustment amount).
	AmountCents int64
	TaxCents    int64
	Description string
	OccurredAt  time.Time
}

// Reference is the idempotency key of the event in the journal.
func (e BillingEvent) Reference() string {
	return fmt.Sprintf("%s:%s", e.Type, e.SourceID)
}

// EntryRef identifies a posted journal entry.
type EntryRef struct {
	ID        snowflake.ID `json:"id"`
	Reference string       `json:"reference"`
	// Duplicate is set when the event had already been posted.
	Duplicate bool `json:"duplicate"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Poster interface {
	Post(ctx context.Context, event BillingEvent) (EntryRef, error)
}

type Service interface {
	Poster
	ListBySource(ctx context.Context, sourceType SourceType, sourceID snowflake.ID) ([]JournalEntry, []JournalLine, error)
	ArchivePostedBefore(ctx context.Context, before time.Time) (int64, error)
}

var (
	ErrInvalidEventType     = errors.New("invalid_event_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrNothingToPost        = errors.New("nothing_to_post")
)
