package proration

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Period is a half-open billing window [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int64     `json:"days"`
}

// Contains reports whether t lies inside [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// NormalizeDate truncates t to midnight of its UTC calendar day.
func NormalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsNormalized reports whether t is already a UTC midnight instant.
func IsNormalized(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	_, offset := t.Zone()
	if offset != 0 {
		return false
	}
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// DaysBetween counts whole days between two normalized dates.
func DaysBetween(start, end time.Time) int64 {
	return int64(end.Sub(start) / day)
}

// NextBillingAnchor adds calendar months to anchor. Days that do not exist in the
// target month clamp to its last day (Jan 31 + 1 month = Feb 28/29).
func NextBillingAnchor(anchor time.Time, months int) (time.Time, error) {
	if err := requireNormalized("anchor", anchor); err != nil {
		return time.Time{}, err
	}
	if months < 1 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidMonths, months)
	}
	return addClampedMonths(anchor, months), nil
}

// BillingPeriod returns [anchor, next anchor) and its length in days.
func BillingPeriod(anchor time.Time) (Period, error) {
	next, err := NextBillingAnchor(anchor, 1)
	if err != nil {
		return Period{}, err
	}
	return Period{Start: anchor, End: next, Days: DaysBetween(anchor, next)}, nil
}

func addClampedMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()

	newY := y
	newM := int(m) + months
	for newM > 12 {
		newM -= 12
		newY++
	}

	lastDay := time.Date(newY, time.Month(newM)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(newY, time.Month(newM), d, 0, 0, 0, 0, time.UTC)
}

func requireNormalized(name string, t time.Time) error {
	if !IsNormalized(t) {
		return fmt.Errorf("%w: %s=%s", ErrDateNotNormalized, name, t.Format(time.RFC3339))
	}
	return nil
}

func requireWindow(name string, start, end time.Time) error {
	if err := requireNormalized(name+"_start", start); err != nil {
		return err
	}
	if err := requireNormalized(name+"_end", end); err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("%w: %s end %s not after start %s", ErrInvalidWindow, name,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return nil
}
