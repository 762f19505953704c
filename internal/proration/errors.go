package proration

import "errors"

var (
	ErrDateNotNormalized = errors.New("date_not_utc_midnight")
	ErrInvalidWindow     = errors.New("invalid_window")
	ErrNegativeAmount    = errors.New("negative_amount")
	ErrDateOutsidePeriod = errors.New("date_outside_period")
	ErrInvalidMonths     = errors.New("invalid_months")
)
