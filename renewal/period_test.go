package renewal_test

import (
	"testing"
	"time"

	"github.com/uniformhq/entitlement-engine/renewal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClampedClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		anchor time.Time
		months int
		want   time.Time
	}{
		{date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{date(2024, time.January, 31), 1, date(2024, time.February, 29)}, // leap year
		{date(2025, time.January, 31), 2, date(2025, time.March, 31)},
		{date(2025, time.March, 15), 6, date(2025, time.September, 15)},
		{date(2025, time.August, 31), 12, date(2026, time.August, 31)},
		{date(2025, time.October, 31), 13, date(2026, time.November, 30)},
	}

	for _, tc := range cases {
		if got := renewal.AddMonthsClamped(tc.anchor, tc.months); !got.Equal(tc.want) {
			t.Errorf("AddMonthsClamped(%v, %d) = %v, want %v", tc.anchor, tc.months, got, tc.want)
		}
	}
}

func TestDue(t *testing.T) {
	anchor := date(2025, time.January, 15)

	if renewal.Due(anchor, 6, date(2025, time.July, 14)) {
		t.Error("one day early must not be due")
	}
	if !renewal.Due(anchor, 6, date(2025, time.July, 15)) {
		t.Error("exactly one cadence later must be due")
	}
	if !renewal.Due(anchor, 6, date(2026, time.March, 1)) {
		t.Error("well past the cadence must be due")
	}
	if renewal.Due(anchor, 0, date(2030, time.January, 1)) {
		t.Error("a zero cadence never comes due")
	}
}

func TestCurrentPeriodStartAdvancesWholeMultiples(t *testing.T) {
	// GIVEN a 6-month cadence anchored 2024-01-15 and a scheduler that
	// was down for over a year
	anchor := date(2024, time.January, 15)
	now := date(2025, time.September, 1)

	// WHEN computing the current period
	start := renewal.CurrentPeriodStart(anchor, 6, now)

	// THEN the anchor advanced by exactly three whole cadences
	// (2024-07-15, 2025-01-15, 2025-07-15), never partially
	if want := date(2025, time.July, 15); !start.Equal(want) {
		t.Fatalf("CurrentPeriodStart = %v, want %v", start, want)
	}
}

func TestCurrentPeriodStartMonthEndAnchorDoesNotDrift(t *testing.T) {
	// A Jan 31 anchor on a monthly cadence clamps each boundary against
	// the original anchor: Feb 28, Mar 31, Apr 30, not Feb 28, Mar 28...
	anchor := date(2025, time.January, 31)

	if got, want := renewal.CurrentPeriodStart(anchor, 1, date(2025, time.March, 30)), date(2025, time.February, 28); !got.Equal(want) {
		t.Fatalf("period start = %v, want %v", got, want)
	}
	if got, want := renewal.CurrentPeriodStart(anchor, 1, date(2025, time.April, 29)), date(2025, time.March, 31); !got.Equal(want) {
		t.Fatalf("period start = %v, want %v", got, want)
	}
}

func TestCurrentPeriodStartBeforeFirstBoundary(t *testing.T) {
	anchor := date(2025, time.January, 15)
	if got := renewal.CurrentPeriodStart(anchor, 6, date(2025, time.March, 1)); !got.Equal(anchor) {
		t.Fatalf("inside the first period the start is the anchor, got %v", got)
	}
}
