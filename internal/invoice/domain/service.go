package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoiceRequest struct {
	SubscriptionID snowflake.ID
	Status         *InvoiceStatus
	pagination.Pagination
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// InvoiceDetail is an invoice with its lines in line-number order.
type InvoiceDetail struct {
	Invoice
	TotalCents int64             `json:"total_cents"`
	LineItems  []InvoiceLineItem `json:"line_items"`
}

// Draft is everything needed to persist a new invoice. Number, totals and
// line numbering are filled in by CreateTx.
type Draft struct {
	SubscriptionID snowflake.ID
	Customer       CustomerSnapshot
	PeriodStart    time.Time
	PeriodEnd      time.Time
	DueDate        time.Time
	Currency       string
	TaxPercentage  decimal.Decimal
	Lines          []InvoiceLineItem
}

type CustomerSnapshot struct {
	ID      snowflake.ID
	Name    string
	Email   string
	Company string
	Address string
	TaxID   string
}

type Service interface {
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (InvoiceDetail, error)
	MarkPaid(ctx context.Context, id snowflake.ID, paidAt time.Time) (*Invoice, error)
	SetJournalEntry(ctx context.Context, id, entryID snowflake.ID) error

	ListDraftsCreatedBefore(ctx context.Context, before time.Time) ([]Invoice, error)
	ListReminderCandidates(ctx context.Context, dueBefore, remindedBefore time.Time) ([]Invoice, error)
	RecordReminder(ctx context.Context, id snowflake.ID, at time.Time) error
	ArchivePaidBefore(ctx context.Context, before time.Time) (int64, error)

	// Transactional helpers used by the billing orchestrator.
	ExistsForPeriodTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, start, end time.Time) (bool, error)
	CreateTx(ctx context.Context, tx *gorm.DB, draft Draft) (*InvoiceDetail, error)
	GetTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Invoice, error)
	FinalizeTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, at time.Time) (*Invoice, error)
	DeleteDraftTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

var (
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrDuplicateInvoice       = errors.New("duplicate_invoice")
	ErrSequenceConflict       = errors.New("invoice_sequence_conflict")
	ErrInvalidInvoiceID       = errors.New("invalid_invoice_id")
	ErrInvalidSubscription    = errors.New("invalid_subscription")
	ErrInvalidPeriod          = errors.New("invalid_invoice_period")
	ErrInvalidDueDate         = errors.New("invalid_due_date")
	ErrInvalidStatus          = errors.New("invalid_invoice_status")
	ErrInvalidLineItemType    = errors.New("invalid_line_item_type")
	ErrInvalidLineDescription = errors.New("invalid_line_description")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrNoLineItems            = errors.New("invoice_has_no_line_items")
	ErrInvoiceNotDraft        = errors.New("invoice_not_draft")
	ErrInvoiceNotFinal        = errors.New("invoice_not_final")
	ErrInvalidTaxPercentage   = errors.New("invalid_tax_percentage")
	ErrInvalidNumberTemplate  = errors.New("invalid_invoice_number_template")
)
