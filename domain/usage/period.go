package usage

import "time"

// MonthLayout formats a calendar month label.
const MonthLayout = "2006-01"

// DayLayout formats a calendar day label.
const DayLayout = "2006-01-02"

// MonthBounds returns the first and last instants of t's calendar month.
// Both bounds are inclusive.
// This is a PURE function.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}

// InWindow reports whether at lies within [start, end].
func InWindow(at, start, end time.Time) bool {
	return !at.Before(start) && !at.After(end)
}

// DaysInMonth returns the number of calendar days in t's month.
func DaysInMonth(t time.Time) int {
	start, end := MonthBounds(t)
	return end.Day() - start.Day() + 1
}

// MonthsBack returns the first day of each of the n months ending with t's
// month, oldest first.
// This is a PURE function.
func MonthsBack(t time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	anchor := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = anchor.AddDate(0, -(n - 1 - i), 0)
	}
	return out
}

// ParseMonth parses a YYYY-MM label in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(MonthLayout, s, loc)
}
