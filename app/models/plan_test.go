package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanDurationInDays(t *testing.T) {
	cases := []struct {
		name     string
		duration PlanDuration
		want     int
	}{
		{"days pass through", PlanDuration{Value: 14, Unit: DurationUnitDays}, 14},
		{"months are thirty days", PlanDuration{Value: 1, Unit: DurationUnitMonths}, 30},
		{"multiple months", PlanDuration{Value: 3, Unit: DurationUnitMonths}, 90},
		{"years are flat 365", PlanDuration{Value: 1, Unit: DurationUnitYears}, 365},
		{"two years never gain leap days", PlanDuration{Value: 2, Unit: DurationUnitYears}, 730},
		{"unknown unit falls back to months", PlanDuration{Value: 2, Unit: "weeks"}, 60},
		{"empty unit falls back to months", PlanDuration{Value: 1}, 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.duration.InDays())
		})
	}
}

func TestPlanBeforeSaveDerivesDurationInDays(t *testing.T) {
	plan := &Plan{
		Name:     "Basic",
		Duration: PlanDuration{Value: 2, Unit: DurationUnitMonths},
		// Stale derived value must be overwritten, never trusted.
		DurationInDays: 7,
	}

	require.NoError(t, plan.BeforeSave(nil))
	assert.Equal(t, 60, plan.DurationInDays)
}

func TestPlanBeforeSaveRejectsMissingDurationValue(t *testing.T) {
	plan := &Plan{Name: "Broken"}

	err := plan.BeforeSave(nil)
	assert.ErrorIs(t, err, ErrDurationValueRequired)
}

func TestPlanBeforeCreateAssignsUUIDOnce(t *testing.T) {
	plan := &Plan{Name: "Basic"}

	require.NoError(t, plan.BeforeCreate(nil))
	assert.NotEmpty(t, plan.UUID)

	existing := plan.UUID
	require.NoError(t, plan.BeforeCreate(nil))
	assert.Equal(t, existing, plan.UUID)
}
