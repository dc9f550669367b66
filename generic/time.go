package generic

import (
	"time"
)

// =============================================================================
// DATES - Calendar-day helpers (all dates are UTC midnight)
// =============================================================================

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping its calendar date in UTC.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return Date(t.Year(), t.Month(), t.Day())
}

func Today() time.Time { return Truncate(time.Now()) }

func BeforeOrEqual(a, b time.Time) bool { return !a.After(b) }
func AfterOrEqual(a, b time.Time) bool  { return !a.Before(b) }

func StartOfMonth(year int, month time.Month) time.Time { return Date(year, month, 1) }

func EndOfMonth(year int, month time.Month) time.Time {
	return Date(year, month+1, 1).AddDate(0, 0, -1)
}

// EndOfPreviousMonth is the last calendar day before the given month starts.
func EndOfPreviousMonth(year int, month time.Month) time.Time {
	return StartOfMonth(year, month).AddDate(0, 0, -1)
}

// MonthsBetween counts whole calendar months from `from` to `to`, ignoring the
// day of month: 2023-01-10 → 2023-07-02 is 6.
func MonthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// Anniversary returns the hire-date anniversary in the given year.
// A Feb 29 hire date falls on Feb 28 in non-leap years.
func Anniversary(hire time.Time, year int) time.Time {
	hire = Truncate(hire)
	if year == hire.Year() {
		return hire
	}
	if hire.Month() == time.February && hire.Day() == 29 && !isLeap(year) {
		return Date(year, time.February, 28)
	}
	return Date(year, hire.Month(), hire.Day())
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

const DateLayout = "2006-01-02"
