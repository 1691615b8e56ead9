/*
Package renewal resets consumed eligibility on each category's cadence.

PURPOSE:
  Two entry points share the cadence math in this file:

  - Scheduler (scheduler.go): the autonomous, idempotent job that walks
    active employees on a ticker and resets each employee-category when
    its period has elapsed.
  - DestructiveReset (reset.go): the preserved admin batch that deletes
    all orders and recomputes eligibility for everyone in one pass.

CALENDAR MATH (period.go):
  Cadences are calendar months with the day-of-month clamped: a Jan 31
  anchor on a 1-month cadence resets Feb 28 (or 29), not Mar 2. A
  stalled scheduler catches up by advancing the anchor by WHOLE cadence
  multiples in one pass, so downtime never double-grants.
*/
package renewal

import "time"

// =============================================================================
// CADENCE MATH - Calendar months, day-of-month clamped
// =============================================================================

// AddMonthsClamped adds calendar months, clamping the day-of-month to
// the target month's length instead of letting it normalize forward.
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// Due reports whether a reset is owed: now has reached the anchor plus
// one cadence.
func Due(anchor time.Time, cadenceMonths int, now time.Time) bool {
	if cadenceMonths <= 0 {
		return false
	}
	return !now.Before(AddMonthsClamped(anchor, cadenceMonths))
}

// CurrentPeriodStart advances the anchor by whole cadence multiples up
// to now and returns the start of the period containing now. Clamping
// is applied against the ORIGINAL anchor so a month-end anchor does not
// drift earlier with every advancement.
func CurrentPeriodStart(anchor time.Time, cadenceMonths int, now time.Time) time.Time {
	if cadenceMonths <= 0 || now.Before(anchor) {
		return anchor
	}
	start := anchor
	for n := cadenceMonths; ; n += cadenceMonths {
		next := AddMonthsClamped(anchor, n)
		if next.After(now) {
			return start
		}
		start = next
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
