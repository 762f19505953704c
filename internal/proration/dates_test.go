package proration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBillingAnchorClampsMonthEnd(t *testing.T) {
	cases := []struct {
		anchor time.Time
		months int
		want   time.Time
	}{
		{anchor: date(2024, 1, 31), months: 1, want: date(2024, 2, 29)},
		{anchor: date(2023, 1, 31), months: 1, want: date(2023, 2, 28)},
		{anchor: date(2024, 3, 31), months: 1, want: date(2024, 4, 30)},
		{anchor: date(2024, 11, 30), months: 3, want: date(2025, 2, 28)},
		{anchor: date(2024, 12, 15), months: 1, want: date(2025, 1, 15)},
		{anchor: date(2024, 1, 15), months: 12, want: date(2025, 1, 15)},
	}
	for _, tc := range cases {
		got, err := NextBillingAnchor(tc.anchor, tc.months)
		require.NoError(t, err)
		assert.True(t, tc.want.Equal(got), "anchor %s +%d: want %s got %s", tc.anchor, tc.months, tc.want, got)
	}
}

func TestNextBillingAnchorValidation(t *testing.T) {
	_, err := NextBillingAnchor(date(2024, 1, 1).Add(time.Minute), 1)
	assert.True(t, errors.Is(err, ErrDateNotNormalized))

	_, err = NextBillingAnchor(date(2024, 1, 1), 0)
	assert.True(t, errors.Is(err, ErrInvalidMonths))
}

func TestBillingPeriod(t *testing.T) {
	p, err := BillingPeriod(date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 1), p.End)
	assert.Equal(t, int64(29), p.Days)
	assert.True(t, p.Contains(date(2024, 3, 1)))
	assert.False(t, p.Contains(date(2024, 3, 2)))
}

func TestNormalizeDate(t *testing.T) {
	in := time.Date(2024, 5, 10, 23, 59, 0, 0, time.FixedZone("EST", -5*3600))
	out := NormalizeDate(in)
	assert.Equal(t, date(2024, 5, 11), out)
	assert.True(t, IsNormalized(out))
	assert.False(t, IsNormalized(time.Time{}))
	assert.True(t, IsNormalized(date(2024, 5, 11).In(time.Local).UTC()))
}
