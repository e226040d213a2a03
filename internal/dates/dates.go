// Package dates holds the calendar-day arithmetic the ledger and backfill
// code share. All dates are civil (timezone-free) days; "today" is taken
// in the bank's local timezone.
package dates

import (
	"time"

	"cloud.google.com/go/civil"
)

// MonthStart returns the first day of d's calendar month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// NextMonthStart returns the first day of the month after d's.
func NextMonthStart(d civil.Date) civil.Date {
	t := time.Date(d.Year, d.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return civil.DateOf(t)
}

// MonthStarts returns every first-of-month from start's month through
// end's month, inclusive, ascending.
func MonthStarts(start, end civil.Date) []civil.Date {
	var out []civil.Date
	cur := MonthStart(start)
	last := MonthStart(end)
	for !cur.After(last) {
		out = append(out, cur)
		cur = NextMonthStart(cur)
	}
	return out
}

// LastBusinessDay maps Saturday/Sunday back to the preceding Friday.
func LastBusinessDay(d civil.Date) civil.Date {
	switch d.In(time.UTC).Weekday() {
	case time.Saturday:
		return d.AddDays(-1)
	case time.Sunday:
		return d.AddDays(-2)
	}
	return d
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) civil.Date {
	return civil.DateOf(time.Now().In(loc))
}
