// Package proration computes day-based partial charges and credits for billing
// periods. All amounts are integer cents and all dates are UTC midnight.
//
// Every call rounds once (half away from zero). Splitting a period into two
// windows and rounding each side independently can therefore drift from the
// full amount by at most one cent; CancellationResult.DriftCents reports it.
package proration

import (
	"fmt"
	"time"
)

// Result is the outcome of prorating one amount over a usage window.
type Result struct {
	FullAmountCents int64     `json:"full_amount_cents"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	UsageStart      time.Time `json:"usage_start"`
	UsageEnd        time.Time `json:"usage_end"`
	TotalDays       int64     `json:"total_days"`
	UsageDays       int64     `json:"usage_days"`
	RatePerDayCents int64     `json:"rate_per_day_cents"`
	ProratedCents   int64     `json:"prorated_cents"`
}

// PlanPrice is the subset of a plan the calculator needs.
type PlanPrice struct {
	Name              string `json:"name"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
}

type PlanChangeResult struct {
	OldPlan       PlanPrice `json:"old_plan"`
	NewPlan       PlanPrice `json:"new_plan"`
	ChangeDate    time.Time `json:"change_date"`
	Period        Period    `json:"period"`
	RemainingDays int64     `json:"remaining_days"`
	// Credit is the unused portion of the old plan (positive number of cents).
	Credit Result `json:"credit"`
	// Charge is the remaining portion of the new plan.
	Charge      Result `json:"charge"`
	CreditCents int64  `json:"credit_cents"`
	ChargeCents int64  `json:"charge_cents"`
	// NetCents is Charge - Credit; positive means upgrade.
	NetCents  int64 `json:"net_cents"`
	IsUpgrade bool  `json:"is_upgrade"`
}

type CancellationResult struct {
	Plan             PlanPrice `json:"plan"`
	CancellationDate time.Time `json:"cancellation_date"`
	Period           Period    `json:"period"`
	Credit           Result    `json:"credit"`
	Used             Result    `json:"used"`
	CreditCents      int64     `json:"credit_cents"`
	UsedCents        int64     `json:"used_cents"`
	// DriftCents is full price - (credit + used); always within [-1, 1].
	DriftCents int64 `json:"drift_cents"`
}

// CalculateProration prorates fullAmountCents over the part of [usageStart, usageEnd)
// that overlaps [periodStart, periodEnd).
func CalculateProration(fullAmountCents int64, periodStart, periodEnd, usageStart, usageEnd time.Time) (Result, error) {
	if fullAmountCents < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrNegativeAmount, fullAmountCents)
	}
	if err := requireWindow("period", periodStart, periodEnd); err != nil {
		return Result{}, err
	}
	if err := requireWindow("usage", usageStart, usageEnd); err != nil {
		return Result{}, err
	}
	return prorate(fullAmountCents, periodStart, periodEnd, usageStart, usageEnd), nil
}

// CalculatePlanChangeProration credits the old plan and charges the new plan for
// [changeDate, periodEnd).
func CalculatePlanChangeProration(oldPlan, newPlan PlanPrice, changeDate, periodStart, periodEnd time.Time) (PlanChangeResult, error) {
	if oldPlan.MonthlyPriceCents < 0 || newPlan.MonthlyPriceCents < 0 {
		return PlanChangeResult{}, ErrNegativeAmount
	}
	if err := requireWindow("period", periodStart, periodEnd); err != nil {
		return PlanChangeResult{}, err
	}
	if err := requireNormalized("change_date", changeDate); err != nil {
		return PlanChangeResult{}, err
	}
	if changeDate.Before(periodStart) || changeDate.After(periodEnd) {
		return PlanChangeResult{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrDateOutsidePeriod,
			changeDate.Format(time.DateOnly), periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))
	}

	credit := prorate(oldPlan.MonthlyPriceCents, periodStart, periodEnd, changeDate, periodEnd)
	charge := prorate(newPlan.MonthlyPriceCents, periodStart, periodEnd, changeDate, periodEnd)
	net := charge.ProratedCents - credit.ProratedCents

	return PlanChangeResult{
		OldPlan:       oldPlan,
		NewPlan:       newPlan,
		ChangeDate:    changeDate,
		Period:        Period{Start: periodStart, End: periodEnd, Days: DaysBetween(periodStart, periodEnd)},
		RemainingDays: DaysBetween(changeDate, periodEnd),
		Credit:        credit,
		Charge:        charge,
		CreditCents:   credit.ProratedCents,
		ChargeCents:   charge.ProratedCents,
		NetCents:      net,
		IsUpgrade:     net > 0,
	}, nil
}

// CalculateCancellationProration splits the period at cancellationDate into a
// used part and a refundable credit.
func CalculateCancellationProration(plan PlanPrice, cancellationDate, periodStart, periodEnd time.Time) (CancellationResult, error) {
	if plan.MonthlyPriceCents < 0 {
		return CancellationResult{}, ErrNegativeAmount
	}
	if err := requireWindow("period", periodStart, periodEnd); err != nil {
		return CancellationResult{}, err
	}
	if err := requireNormalized("cancellation_date", cancellationDate); err != nil {
		return CancellationResult{}, err
	}
	if cancellationDate.Before(periodStart) || cancellationDate.After(periodEnd) {
		return CancellationResult{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrDateOutsidePeriod,
			cancellationDate.Format(time.DateOnly), periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))
	}

	credit := prorate(plan.MonthlyPriceCents, periodStart, periodEnd, cancellationDate, periodEnd)
	used := prorate(plan.MonthlyPriceCents, periodStart, periodEnd, periodStart, cancellationDate)

	return CancellationResult{
		Plan:             plan,
		CancellationDate: cancellationDate,
		Period:           Period{Start: periodStart, End: periodEnd, Days: DaysBetween(periodStart, periodEnd)},
		Credit:           credit,
		Used:             used,
		CreditCents:      credit.ProratedCents,
		UsedCents:        used.ProratedCents,
		DriftCents:       plan.MonthlyPriceCents - credit.ProratedCents - used.ProratedCents,
	}, nil
}

// DailyRate is the per-day price used for service credits (monthly / 30).
func DailyRate(monthlyPriceCents int64) int64 {
	return RoundDiv(monthlyPriceCents, 30)
}

// prorate assumes validated, normalized inputs; zero-length windows yield zero.
func prorate(full int64, periodStart, periodEnd, usageStart, usageEnd time.Time) Result {
	totalDays := DaysBetween(periodStart, periodEnd)

	res := Result{
		FullAmountCents: full,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		UsageStart:      usageStart,
		UsageEnd:        usageEnd,
		TotalDays:       totalDays,
	}
	if totalDays <= 0 {
		return res
	}
	res.RatePerDayCents = RoundDiv(full, totalDays)

	start := maxTime(usageStart, periodStart)
	end := minTime(usageEnd, periodEnd)
	if !end.After(start) {
		return res
	}

	res.UsageDays = DaysBetween(start, end)
	if res.UsageDays == totalDays {
		res.ProratedCents = full
		return res
	}
	res.ProratedCents = RoundDiv(full*res.UsageDays, totalDays)
	return res
}

// RoundDiv divides num by den rounding half away from zero. den must be positive.
func RoundDiv(num, den int64) int64 {
	if den <= 0 {
		panic("proration: non-positive divisor")
	}
	if num < 0 {
		return -((-num*2 + den) / (den * 2))
	}
	return (num*2 + den) / (den * 2)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
