package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// NewInvoiceLineItem builds an unsaved line; amount is quantity × unit price.
// Line numbers and ids are assigned when the invoice is persisted.
func NewInvoiceLineItem(itemType LineItemType, description string, quantity, unitPriceCents int64, taxable bool) (InvoiceLineItem, error) {
	if !itemType.Valid() {
		return InvoiceLineItem{}, ErrInvalidLineItemType
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return InvoiceLineItem{}, ErrInvalidLineDescription
	}
	if quantity <= 0 {
		return InvoiceLineItem{}, ErrInvalidQuantity
	}
	return InvoiceLineItem{
		ItemType:       itemType,
		Description:    description,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		AmountCents:    quantity * unitPriceCents,
		Taxable:        taxable,
	}, nil
}

// WithServicePeriod records the window the line pays for.
func (l InvoiceLineItem) WithServicePeriod(start, end time.Time) InvoiceLineItem {
	l.ServicePeriodStart = &start
	l.ServicePeriodEnd = &end
	return l
}

// Totals returns the subtotal of all lines and the tax on the taxable ones.
// Tax is rounded half away from zero and never negative.
func Totals(lines []InvoiceLineItem, taxPercentage decimal.Decimal) (subtotal, tax int64) {
	var taxable int64
	for _, line := range lines {
		subtotal += line.AmountCents
		if line.Taxable {
			taxable += line.AmountCents
		}
	}
	if taxable <= 0 || !taxPercentage.IsPositive() {
		return subtotal, 0
	}
	tax = decimal.NewFromInt(taxable).Mul(taxPercentage).Div(hundred).Round(0).IntPart()
	return subtotal, tax
}
