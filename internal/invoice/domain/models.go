// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinal     InvoiceStatus = "FINAL"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusFinal, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Invoice is the bill for one subscription period. Period end is exclusive.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoice_subscription_period,priority:1" json:"subscription_id"`
	CustomerID     snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	InvoiceNumber  string        `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	Sequence       int64         `gorm:"not null;uniqueIndex" json:"-"`
	PeriodStart    time.Time     `gorm:"not null;uniqueIndex:ux_invoice_subscription_period,priority:2" json:"period_start"`
	PeriodEnd      time.Time     `gorm:"not null;uniqueIndex:ux_invoice_subscription_period,priority:3" json:"period_end"`
	SubtotalCents  int64         `gorm:"not null" json:"subtotal_cents"`
	TaxCents       int64         `gorm:"not null" json:"tax_cents"`
	TaxPercentage  string        `gorm:"type:text;not null" json:"tax_percentage"`
	Currency       string        `gorm:"type:text;not null" json:"currency"`
	Status         InvoiceStatus `gorm:"type:text;not null;index" json:"status"`
	DueDate        time.Time     `gorm:"not null;index" json:"due_date"`

	CustomerName    string `gorm:"type:text" json:"customer_name"`
	CustomerEmail   string `gorm:"type:text" json:"customer_email"`
	CustomerCompany string `gorm:"type:text" json:"customer_company,omitempty"`
	CustomerAddress string `gorm:"type:text" json:"customer_address,omitempty"`
	CustomerTaxID   string `gorm:"type:text" json:"customer_tax_id,omitempty"`

	FinalizedAt    *time.Time    `json:"finalized_at,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	LastReminderAt *time.Time    `json:"last_reminder_at,omitempty"`
	ReminderCount  int           `gorm:"not null" json:"reminder_count"`
	Archived       bool          `gorm:"not null;index" json:"archived"`
	ArchivedAt     *time.Time    `json:"archived_at,omitempty"`
	JournalEntryID *snowflake.ID `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Total is subtotal plus tax.
func (i Invoice) Total() int64 { return i.SubtotalCents + i.TaxCents }

// IsOverdue reports whether a finalized invoice is past its due date at asOf.
func (i Invoice) IsOverdue(asOf time.Time) bool {
	return i.Status == InvoiceStatusFinal && asOf.After(i.DueDate)
}

type LineItemType string

const (
	LineItemSubscription LineItemType = "SUBSCRIPTION"
	LineItemProration    LineItemType = "PRORATION"
	LineItemAdjustment   LineItemType = "ADJUSTMENT"
)

func (t LineItemType) Valid() bool {
	switch t {
	case LineItemSubscription, LineItemProration, LineItemAdjustment:
		return true
	}
	return false
}

// InvoiceLineItem represents a line on an invoice.
type InvoiceLineItem struct {
	ID                 snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID          snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoice_line_number,priority:1" json:"invoice_id"`
	LineNumber         int           `gorm:"not null;uniqueIndex:ux_invoice_line_number,priority:2" json:"line_number"`
	ItemType           LineItemType  `gorm:"type:text;not null" json:"item_type"`
	Description        string        `gorm:"type:text;not null" json:"description"`
	Quantity           int64         `gorm:"not null" json:"quantity"`
	UnitPriceCents     int64         `gorm:"not null" json:"unit_price_cents"`
	AmountCents        int64         `gorm:"not null" json:"amount_cents"`
	Taxable            bool          `gorm:"not null" json:"taxable"`
	AdjustmentID       *snowflake.ID `gorm:"index" json:"adjustment_id,omitempty"`
	ServicePeriodStart *time.Time    `json:"service_period_start,omitempty"`
	ServicePeriodEnd   *time.Time    `json:"service_period_end,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }
