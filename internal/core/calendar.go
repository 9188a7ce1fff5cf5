package core

import "time"

// SameMonth reports whether a and b fall in the same calendar month in loc.
func SameMonth(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// PreviousMonth returns the first instant of the month before t, in loc.
func PreviousMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, loc)
}

// AddMonths adds n calendar months to t. The day is clamped to the last day
// of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// MonthWindow returns the first and last instant of the given month in loc.
func MonthWindow(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

// InMonth reports whether t falls inside the given month in loc.
func InMonth(t time.Time, year int, month time.Month, loc *time.Location) bool {
	start, end := MonthWindow(year, month, loc)
	return !t.Before(start) && !t.After(end)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
