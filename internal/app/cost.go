package app

import (
	"math"
	"time"
)

// Pricing holds the billing parameters for a rental. Fees are in cents.
type Pricing struct {
	FixedFeeCents     int64
	PerMinuteFeeCents int64
}

// DefaultPricing is a 5.00 unlock fee plus 0.15 per minute.
var DefaultPricing = Pricing{
	FixedFeeCents:     500,
	PerMinuteFeeCents: 15,
}

// CostCents computes the rental cost in cents, rounded to the nearest cent:
//
//	minutes = (endedAt - startedAt) / 1 minute
//	cost    = fixedFee + perMinuteFee * minutes
//
// A zero or negative duration is rejected, never billed.
func (p Pricing) CostCents(startedAt, endedAt time.Time) (int64, error) {
	if !endedAt.After(startedAt) {
		return 0, ErrInvalidRentalPeriod
	}
	minutes := float64(endedAt.Sub(startedAt).Milliseconds()) / 60000
	cost := float64(p.FixedFeeCents) + float64(p.PerMinuteFeeCents)*minutes
	return int64(math.Round(cost)), nil
}
