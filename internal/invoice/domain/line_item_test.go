package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvoiceLineItem(t *testing.T) {
	l, err := NewInvoiceLineItem(LineItemSubscription, " Pro plan ", 2, 750, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), l.AmountCents)
	assert.Equal(t, "Pro plan", l.Description)

	_, err = NewInvoiceLineItem("FEE", "x", 1, 1, false)
	assert.ErrorIs(t, err, ErrInvalidLineItemType)
	_, err = NewInvoiceLineItem(LineItemAdjustment, " ", 1, 1, false)
	assert.ErrorIs(t, err, ErrInvalidLineDescription)
	_, err = NewInvoiceLineItem(LineItemAdjustment, "x", 0, 1, false)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestTotals(t *testing.T) {
	lines := []InvoiceLineItem{
		{AmountCents: 1000, Taxable: true},
		{AmountCents: 5, Taxable: true},
		{AmountCents: 300, Taxable: false},
	}
	sub, tax := Totals(lines, decimal.RequireFromString("10"))
	assert.Equal(t, int64(1305), sub)
	// 100.5 rounds half away from zero
	assert.Equal(t, int64(101), tax)

	_, tax = Totals(lines, decimal.Zero)
	assert.Zero(t, tax)

	_, tax = Totals([]InvoiceLineItem{{AmountCents: -100, Taxable: true}}, decimal.NewFromInt(18))
	assert.Zero(t, tax)
}
