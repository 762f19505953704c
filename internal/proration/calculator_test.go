package proration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateProrationFullWindowIsExact(t *testing.T) {
	amounts := []int64{0, 1, 7, 999, 1499, 100_001, 123_456_789}
	periods := [][2]time.Time{
		{date(2024, 1, 1), date(2024, 2, 1)},
		{date(2024, 2, 1), date(2024, 3, 1)},
		{date(2023, 2, 1), date(2023, 3, 1)},
		{date(2024, 1, 31), date(2024, 2, 29)},
		{date(2024, 1, 1), date(2024, 1, 2)},
	}
	for _, amt := range amounts {
		for _, p := range periods {
			res, err := CalculateProration(amt, p[0], p[1], p[0], p[1])
			require.NoError(t, err)
			assert.Equal(t, amt, res.ProratedCents, "amount %d period %v", amt, p)
			assert.Equal(t, res.TotalDays, res.UsageDays)
		}
	}
}

func TestCalculateProration(t *testing.T) {
	start, end := date(2024, 4, 1), date(2024, 5, 1)

	cases := []struct {
		name       string
		full       int64
		usageStart time.Time
		usageEnd   time.Time
		wantDays   int64
		wantAmount int64
	}{
		{name: "last twenty days", full: 999, usageStart: date(2024, 4, 11), usageEnd: end, wantDays: 20, wantAmount: 666},
		{name: "half up", full: 1, usageStart: date(2024, 4, 16), usageEnd: end, wantDays: 15, wantAmount: 1},
		{name: "clipped to period", full: 3000, usageStart: date(2024, 3, 1), usageEnd: date(2024, 4, 11), wantDays: 10, wantAmount: 1000},
		{name: "no overlap", full: 3000, usageStart: date(2024, 6, 1), usageEnd: date(2024, 6, 5), wantDays: 0, wantAmount: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := CalculateProration(tc.full, start, end, tc.usageStart, tc.usageEnd)
			require.NoError(t, err)
			assert.Equal(t, int64(30), res.TotalDays)
			assert.Equal(t, tc.wantDays, res.UsageDays)
			assert.Equal(t, tc.wantAmount, res.ProratedCents)
			assert.Equal(t, RoundDiv(tc.full, 30), res.RatePerDayCents)
		})
	}
}

func TestCalculateProrationRejectsBadInput(t *testing.T) {
	start, end := date(2024, 4, 1), date(2024, 5, 1)

	_, err := CalculateProration(100, start, end, start.Add(time.Hour), end)
	assert.True(t, errors.Is(err, ErrDateNotNormalized))

	_, err = CalculateProration(100, end, start, start, end)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	_, err = CalculateProration(100, start, end, start, start)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	_, err = CalculateProration(-1, start, end, start, end)
	assert.True(t, errors.Is(err, ErrNegativeAmount))

	nonUTC := time.Date(2024, 4, 1, 0, 0, 0, 0, time.FixedZone("IST", 19800))
	_, err = CalculateProration(100, nonUTC, end, start, end)
	assert.True(t, errors.Is(err, ErrDateNotNormalized))
}

func TestCalculatePlanChangeProrationUpgradeScenario(t *testing.T) {
	oldPlan := PlanPrice{Name: "Basic", MonthlyPriceCents: 999}
	newPlan := PlanPrice{Name: "Pro", MonthlyPriceCents: 1499}

	res, err := CalculatePlanChangeProration(oldPlan, newPlan, date(2024, 4, 11), date(2024, 4, 1), date(2024, 5, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(666), res.CreditCents)
	assert.Equal(t, int64(999), res.ChargeCents)
	assert.Equal(t, int64(333), res.NetCents)
	assert.Equal(t, int64(20), res.RemainingDays)
	assert.True(t, res.IsUpgrade)
}

func TestCalculatePlanChangeProrationAtPeriodStartIsPriceDifference(t *testing.T) {
	start, end := date(2024, 2, 1), date(2024, 3, 1)
	res, err := CalculatePlanChangeProration(
		PlanPrice{MonthlyPriceCents: 4999},
		PlanPrice{MonthlyPriceCents: 1999},
		start, start, end,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1999-4999), res.NetCents)
	assert.False(t, res.IsUpgrade)
}

func TestCalculatePlanChangeProrationOutsidePeriod(t *testing.T) {
	_, err := CalculatePlanChangeProration(PlanPrice{}, PlanPrice{}, date(2024, 3, 2), date(2024, 2, 1), date(2024, 3, 1))
	assert.True(t, errors.Is(err, ErrDateOutsidePeriod))

	res, err := CalculatePlanChangeProration(PlanPrice{MonthlyPriceCents: 10}, PlanPrice{MonthlyPriceCents: 20}, date(2024, 3, 1), date(2024, 2, 1), date(2024, 3, 1))
	require.NoError(t, err)
	assert.Zero(t, res.NetCents)
}

func TestCalculateCancellationProrationDriftWithinOneCent(t *testing.T) {
	start, end := date(2024, 1, 31), date(2024, 2, 29)
	for _, price := range []int64{1, 2, 3, 99, 999, 1001, 1499, 2999, 100_003} {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			res, err := CalculateCancellationProration(PlanPrice{MonthlyPriceCents: price}, d, start, end)
			require.NoError(t, err)
			sum := res.CreditCents + res.UsedCents
			assert.LessOrEqual(t, abs(price-sum), int64(1), "price %d date %s", price, d)
			assert.Equal(t, price-sum, res.DriftCents)
		}
	}
}

func TestCalculateCancellationProrationEdges(t *testing.T) {
	start, end := date(2024, 4, 1), date(2024, 5, 1)
	plan := PlanPrice{MonthlyPriceCents: 3000}

	res, err := CalculateCancellationProration(plan, start, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.CreditCents)
	assert.Zero(t, res.UsedCents)

	res, err = CalculateCancellationProration(plan, end, start, end)
	require.NoError(t, err)
	assert.Zero(t, res.CreditCents)
	assert.Equal(t, int64(3000), res.UsedCents)
}

func TestRoundDiv(t *testing.T) {
	assert.Equal(t, int64(2), RoundDiv(3, 2))
	assert.Equal(t, int64(-2), RoundDiv(-3, 2))
	assert.Equal(t, int64(1), RoundDiv(4, 3))
	assert.Equal(t, int64(33), RoundDiv(999, 30))
	assert.Equal(t, int64(0), RoundDiv(0, 7))
}

func TestDailyRate(t *testing.T) {
	assert.Equal(t, int64(50), DailyRate(1499))
	assert.Equal(t, int64(100), DailyRate(3000))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
