package generic

import "time"

// =============================================================================
// PERIOD - A one-year accrual window anchored at the hire anniversary
// =============================================================================

// Period is a half-open window [Start, End). End is the next anniversary, so
// consecutive periods of the same employee share a boundary and never overlap.
//
// Examples (hired 2023-01-10):
//   - 2023: [2023-01-10, 2024-01-10)
//   - 2024: [2024-01-10, 2025-01-10)
type Period struct {
	Year  int
	Start time.Time
	End   time.Time
}

// AnniversaryPeriod returns the accrual window of the given year.
func AnniversaryPeriod(hire time.Time, year int) Period {
	return Period{
		Year:  year,
		Start: Anniversary(hire, year),
		End:   Anniversary(hire, year+1),
	}
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return AfterOrEqual(t, p.Start) && t.Before(p.End)
}

// Overlaps reports whether the period intersects the closed range [from, to].
func (p Period) Overlaps(from, to time.Time) bool {
	return p.Start.Before(to.AddDate(0, 0, 1)) && from.Before(p.End)
}

// MonthsElapsed counts whole months accrued by asOf, clamped to [0, 12].
//
//   - asOf at or after End: the period is mature, 12.
//   - asOf before Start: future period, 0.
//   - otherwise: calendar months from Start to asOf; the day of month is ignored.
func (p Period) MonthsElapsed(asOf time.Time) int {
	asOf = Truncate(asOf)
	switch {
	case AfterOrEqual(asOf, p.End):
		return 12
	case asOf.Before(p.Start):
		return 0
	}
	months := MonthsBetween(p.Start, asOf)
	if months < 0 {
		return 0
	}
	if months > 12 {
		return 12
	}
	return months
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + ")"
}

// Next returns the following anniversary year.
func (p Period) Next(hire time.Time) Period {
	return AnniversaryPeriod(hire, p.Year+1)
}
