package lifecycle

import (
	"math"
	"time"
)

// Proration is the outcome of a mid-period plan change calculation. All money
// amounts are rounded to 2 decimals independently of each other.
type Proration struct {
	TotalDays     int     `json:"total_days"`
	DaysUsed      int     `json:"days_used"`
	DaysRemaining int     `json:"days_remaining"`
	UnusedAmount  float64 `json:"unused_amount"`
	NewPlanAmount float64 `json:"new_plan_amount"`
	// ProratedAmount is the net charge (positive) or credit (negative).
	ProratedAmount float64 `json:"prorated_amount"`
	IsUpgrade      bool    `json:"is_upgrade"`
}

// CalculateProration computes the partial charge or credit for switching from
// a plan priced oldPrice to one priced newPrice at changeDate, inside the
// billing period [periodStart, periodEnd]. Day counts are rounded up, so a
// partial day counts as a full one. A period with no positive length is
// rejected with ErrInvalidPeriod.
func CalculateProration(oldPrice, newPrice float64, periodStart, periodEnd, changeDate time.Time) (*Proration, error) {
	totalDays := ceilDays(periodStart, periodEnd)
	if totalDays <= 0 {
		return nil, ErrInvalidPeriod
	}
	daysRemaining := ceilDays(changeDate, periodEnd)
	daysUsed := totalDays - daysRemaining

	unused := oldPrice / float64(totalDays) * float64(daysRemaining)
	newAmount := newPrice / float64(totalDays) * float64(daysRemaining)

	return &Proration{
		TotalDays:      totalDays,
		DaysUsed:       daysUsed,
		DaysRemaining:  daysRemaining,
		UnusedAmount:   round2(unused),
		NewPlanAmount:  round2(newAmount),
		ProratedAmount: round2(newAmount - unused),
		IsUpgrade:      newPrice > oldPrice,
	}, nil
}

// ceilDays counts whole days between two instants, rounding up.
func ceilDays(from, to time.Time) int {
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
