package search

import (
	"iter"
	"slices"
	"time"

	"github.com/samber/mo"

	"agenda/internal/model"
	"agenda/internal/rule"
	"agenda/internal/tz"
)

// candidate is one step of a rule's ascending scan. An invalid candidate
// stands for a month slot whose date does not exist; probe is the first day
// of that month.
type candidate struct {
	occ   model.Occurrence
	valid bool
	probe rule.Date
}

type slot struct {
	date  rule.Date
	valid bool
}

// candidates yields the rule's candidates in ascending order starting no
// later than the first one at or after from.
func candidates(r rule.Rule, from time.Time, zone tz.Resolver, src Source) iter.Seq[candidate] {
	civil := dateIn(from, r.Standard(), zone)
	switch r.Kind() {
	case rule.KindOnce:
		return onceCandidates(r, src)
	case rule.KindEveryInterval:
		return intervalCandidates(r, from, src)
	case rule.KindEveryNDays:
		return calendarCandidates(r, daySlots(r, civil), zone, src)
	case rule.KindEveryNWeeks:
		return calendarCandidates(r, weekSlots(r, civil), zone, src)
	case rule.KindEveryNMonths, rule.KindEveryNYears,
		rule.KindMonthlyDirect, rule.KindMonthlyInverse, rule.KindMonthlyWeekday:
		return calendarCandidates(r, monthSlots(r, civil), zone, src)
	case rule.KindExceptOnce:
		return func(func(candidate) bool) {}
	default:
		panic("search: unhandled rule kind " + string(r.Kind()))
	}
}

func occurrence(r rule.Rule, start time.Time, src Source) model.Occurrence {
	o := model.Occurrence{ContainerID: src.ContainerID, ItemID: src.ItemID, Start: start}
	if end, ok := r.End().Get(); ok {
		o.End = mo.Some(start.Add(end))
	}
	if alarm, ok := r.Alarm().Get(); ok {
		o.Alarm = mo.Some(start.Add(-alarm))
	}
	return o
}

func onceCandidates(r rule.Rule, src Source) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		yield(candidate{occ: occurrence(r, r.Start(), src), valid: true})
	}
}

// intervalCandidates steps arithmetically from the reference instant in both
// directions, beginning with the last start at or before from.
func intervalCandidates(r rule.Rule, from time.Time, src Source) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		ref := r.Start()
		step := int64(r.Interval() / time.Second)
		k := floorDiv(from.Unix()-ref.Unix(), step)
		for ; ; k++ {
			start := time.Unix(ref.Unix()+k*step, int64(ref.Nanosecond())).In(ref.Location())
			if !yield(candidate{occ: occurrence(r, start, src), valid: true}) {
				return
			}
		}
	}
}

func calendarCandidates(r rule.Rule, slots iter.Seq[slot], zone tz.Resolver, src Source) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		for s := range slots {
			c := candidate{valid: s.valid, probe: s.date}
			if s.valid {
				start := wallClock(s.date, r.Hour(), r.Minute(), r.Standard(), zone)
				c.occ = occurrence(r, start, src)
			}
			if !yield(c) {
				return
			}
		}
	}
}

func daySlots(r rule.Rule, from rule.Date) iter.Seq[slot] {
	return func(yield func(slot) bool) {
		anchor, n := dayNumber(r.Anchor()), int64(r.Every())
		for dn := anchor + ceilDiv(dayNumber(from)-anchor, n)*n; ; dn += n {
			if !yield(slot{date: fromDayNumber(dn), valid: true}) {
				return
			}
		}
	}
}

// weekSlots walks the active weeks, those a multiple of every weeks away from
// the anchor's week. Weeks start on Monday.
func weekSlots(r rule.Rule, from rule.Date) iter.Seq[slot] {
	return func(yield func(slot) bool) {
		n := int64(r.Every())
		offsets := make([]int64, 0, 7)
		for _, wd := range r.Weekdays() {
			offsets = append(offsets, weekOffset(wd))
		}
		slices.Sort(offsets)

		first := dayNumber(from)
		anchorWeek := mondayOf(dayNumber(r.Anchor()))
		index := floorDiv(mondayOf(first)-anchorWeek, 7)
		for week := anchorWeek + ceilDiv(index, n)*n*7; ; week += 7 * n {
			for _, off := range offsets {
				if week+off < first {
					continue
				}
				if !yield(slot{date: fromDayNumber(week + off), valid: true}) {
					return
				}
			}
		}
	}
}

// monthSlots walks the rule's active months starting with from's month. A
// month in which the day cannot be placed yields an invalid slot.
func monthSlots(r rule.Rule, from rule.Date) iter.Seq[slot] {
	return func(yield func(slot) bool) {
		cycle := newMonthCycle(r)
		for mi := monthIndex(from.Year, from.Month); ; mi++ {
			mi = cycle.next(mi)
			year, month := splitMonth(mi)
			d, ok := dayInMonth(r, year, month)
			s := slot{date: rule.Date{Year: year, Month: month, Day: 1}, valid: ok}
			if ok {
				s.date.Day = d
			}
			if !yield(s) {
				return
			}
		}
	}
}

type monthCycle struct {
	kind   rule.Kind
	months []time.Month
	anchor rule.Date
	every  int
	month  time.Month
}

func newMonthCycle(r rule.Rule) monthCycle {
	return monthCycle{
		kind:   r.Kind(),
		months: r.Months(),
		anchor: r.Anchor(),
		every:  r.Every(),
		month:  r.Month(),
	}
}

// next returns the first active month index at or after mi.
func (c monthCycle) next(mi int) int {
	switch c.kind {
	case rule.KindEveryNMonths:
		a, n := int64(monthIndex(c.anchor.Year, c.anchor.Month)), int64(c.every)
		return int(a + ceilDiv(int64(mi)-a, n)*n)
	case rule.KindEveryNYears:
		year, month := splitMonth(mi)
		if month > c.month {
			year++
		}
		a, n := int64(c.anchor.Year), int64(c.every)
		return monthIndex(int(a+ceilDiv(int64(year)-a, n)*n), c.month)
	default:
		year, month := splitMonth(mi)
		for _, m := range c.months {
			if m >= month {
				return monthIndex(year, m)
			}
		}
		return monthIndex(year+1, c.months[0])
	}
}

func dayInMonth(r rule.Rule, year int, month time.Month) (int, bool) {
	switch r.Kind() {
	case rule.KindMonthlyInverse:
		d := rule.DaysIn(year, month) - r.Day() + 1
		return d, d >= 1
	case rule.KindMonthlyWeekday:
		return nthWeekday(year, month, r.Weekday(), r.Ordinal())
	default:
		return r.Day(), r.Day() <= rule.DaysIn(year, month)
	}
}
