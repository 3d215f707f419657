package lifecycle

import (
	"errors"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}

func TestCalculateProrationMidPeriodUpgrade(t *testing.T) {
	got, err := CalculateProration(10.00, 20.00, day(0), day(30), day(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.TotalDays != 30 || got.DaysRemaining != 15 || got.DaysUsed != 15 {
		t.Fatalf("day split = %d/%d/%d, want 30/15/15", got.TotalDays, got.DaysUsed, got.DaysRemaining)
	}
	if got.UnusedAmount != 5.00 {
		t.Fatalf("UnusedAmount = %v, want 5.00", got.UnusedAmount)
	}
	if got.NewPlanAmount != 10.00 {
		t.Fatalf("NewPlanAmount = %v, want 10.00", got.NewPlanAmount)
	}
	if got.ProratedAmount != 5.00 {
		t.Fatalf("ProratedAmount = %v, want 5.00", got.ProratedAmount)
	}
	if !got.IsUpgrade {
		t.Fatal("expected upgrade")
	}
}

func TestCalculateProrationRoundsOutputsIndependently(t *testing.T) {
	// 7 of 30 days remain: raw unused = 2.3333..., raw new = 4.6666...,
	// raw net = 2.3333... Each output rounds from its raw value, so the net
	// is 2.33, not NewPlanAmount-UnusedAmount = 4.67-2.33 = 2.34.
	got, err := CalculateProration(10.00, 20.00, day(0), day(30), day(23))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UnusedAmount != 2.33 {
		t.Fatalf("UnusedAmount = %v, want 2.33", got.UnusedAmount)
	}
	if got.NewPlanAmount != 4.67 {
		t.Fatalf("NewPlanAmount = %v, want 4.67", got.NewPlanAmount)
	}
	if got.ProratedAmount != 2.33 {
		t.Fatalf("ProratedAmount = %v, want 2.33", got.ProratedAmount)
	}
}

func TestCalculateProrationCountsPartialDaysAsFull(t *testing.T) {
	end := day(30).Add(12 * time.Hour)
	got, err := CalculateProration(10.00, 20.00, day(0), end, day(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalDays != 31 {
		t.Fatalf("TotalDays = %d, want 31", got.TotalDays)
	}
	if got.DaysRemaining != 16 {
		t.Fatalf("DaysRemaining = %d, want 16", got.DaysRemaining)
	}
}

func TestCalculateProrationDowngradeCredits(t *testing.T) {
	got, err := CalculateProration(20.00, 10.00, day(0), day(30), day(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ProratedAmount != -5.00 {
		t.Fatalf("ProratedAmount = %v, want -5.00", got.ProratedAmount)
	}
	if got.IsUpgrade {
		t.Fatal("downgrade must not report upgrade")
	}
}

func TestCalculateProrationSymmetry(t *testing.T) {
	pairs := []struct{ a, b float64 }{
		{9.99, 29.99},
		{10.00, 20.00},
		{0.00, 14.50},
		{33.33, 33.33},
	}
	for _, p := range pairs {
		forward, err := CalculateProration(p.a, p.b, day(0), day(30), day(11))
		if err != nil {
			t.Fatalf("forward(%v, %v): %v", p.a, p.b, err)
		}
		backward, err := CalculateProration(p.b, p.a, day(0), day(30), day(11))
		if err != nil {
			t.Fatalf("backward(%v, %v): %v", p.b, p.a, err)
		}
		if forward.ProratedAmount != -backward.ProratedAmount {
			t.Fatalf("proration not symmetric for (%v, %v): %v vs %v",
				p.a, p.b, forward.ProratedAmount, backward.ProratedAmount)
		}
	}
}

func TestCalculateProrationRejectsDegeneratePeriod(t *testing.T) {
	if _, err := CalculateProration(10, 20, day(5), day(5), day(5)); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("zero-length period: got %v, want ErrInvalidPeriod", err)
	}
	if _, err := CalculateProration(10, 20, day(10), day(5), day(7)); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("inverted period: got %v, want ErrInvalidPeriod", err)
	}
}
