package search

import (
	"time"

	"agenda/internal/rule"
	"agenda/internal/tz"
)

// Day numbers count days since 1970-01-01, which was a Thursday.
func dayNumber(d rule.Date) int64 {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func fromDayNumber(n int64) rule.Date {
	return rule.DateOf(time.Unix(n*86400, 0).UTC())
}

// mondayOf returns the day number of the Monday starting n's week.
func mondayOf(n int64) int64 {
	return n - floorMod(n+3, 7)
}

// weekOffset maps a weekday to its offset from Monday.
func weekOffset(wd time.Weekday) int64 {
	return int64((int(wd) + 6) % 7)
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func splitMonth(mi int) (int, time.Month) {
	return floorDivInt(mi, 12), time.Month(mi - floorDivInt(mi, 12)*12 + 1)
}

// nthWeekday returns the day of month of the ordinal-th weekday, counting
// from the end for negative ordinals. ok is false when the month is too short.
func nthWeekday(year int, month time.Month, wd time.Weekday, ordinal int) (int, bool) {
	last := rule.DaysIn(year, month)
	if ordinal > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
		d := 1 + (int(wd)-int(first)+7)%7 + (ordinal-1)*7
		return d, d <= last
	}
	lastWd := time.Date(year, month, last, 0, 0, 0, 0, time.UTC).Weekday()
	d := last - (int(lastWd)-int(wd)+7)%7 + (ordinal+1)*7
	return d, d >= 1
}

// dateIn returns the civil date of t as seen by a rule of the given standard.
func dateIn(t time.Time, std rule.Standard, zone tz.Resolver) rule.Date {
	if std == rule.UTC {
		return rule.DateOf(t.UTC())
	}
	return rule.DateOf(t.In(zone.Location()))
}

// wallClock turns a civil slot into an instant.
//
// Local rules take the wall clock in the zone; inside a DST gap time.Date
// applies the offset in effect after the transition. UTC rules read the wall
// clock as local first, then shift it by the offset the zone resolves for
// that candidate.
func wallClock(d rule.Date, hour, minute int, std rule.Standard, zone tz.Resolver) time.Time {
	local := time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, zone.Location())
	if std == rule.Local {
		return local
	}
	start := local.Add(zone.Offset(local)).UTC()
	// Inside a gap the local wall clock was moved by the transition.
	got := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, time.UTC)
	want := time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, time.UTC)
	return start.Add(want.Sub(got))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

func floorDivInt(a, b int) int {
	return int(floorDiv(int64(a), int64(b)))
}
