package rule

import (
	"slices"
	"time"
)

const day = 24 * time.Hour

// NewOnce returns a rule producing a single occurrence at start.
func NewOnce(start time.Time, opts ...Option) (Rule, error) {
	r := Rule{kind: KindOnce, start: start}
	return r.finish(opts)
}

// NewEveryInterval returns a rule producing occurrences every interval,
// aligned on ref, in both directions.
func NewEveryInterval(ref time.Time, interval time.Duration, opts ...Option) (Rule, error) {
	r := Rule{kind: KindEveryInterval, start: ref, interval: interval}
	if interval < time.Second || interval%time.Second != 0 {
		return Rule{}, invalid(r.kind, "interval", "must be a positive whole number of seconds, got %v", interval)
	}
	return r.finish(opts)
}

// NewEveryNDays returns a rule producing one occurrence at hour:minute every
// n days, counted from anchor.
func NewEveryNDays(anchor Date, n, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindEveryNDays, anchor: anchor, every: n, hour: hour, minute: minute}
	if err := r.checkEvery(); err != nil {
		return Rule{}, err
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewEveryNWeeks returns a rule producing occurrences at hour:minute on the
// given weekdays of every n-th week, counted from the week of anchor.
// Weeks start on Monday.
func NewEveryNWeeks(anchor Date, n int, weekdays []time.Weekday, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindEveryNWeeks, anchor: anchor, every: n, hour: hour, minute: minute}
	if err := r.checkEvery(); err != nil {
		return Rule{}, err
	}
	if len(weekdays) == 0 {
		return Rule{}, invalid(r.kind, "weekdays", "must not be empty")
	}
	for _, wd := range weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return Rule{}, invalid(r.kind, "weekdays", "unknown weekday %d", wd)
		}
	}
	r.weekdays = slices.Compact(slices.Sorted(slices.Values(weekdays)))
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewEveryNMonths returns a rule producing an occurrence on the given day
// of every n-th month, counted from the month of anchor. Months lacking the
// day are skipped.
func NewEveryNMonths(anchor Date, n, dayOfMonth, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindEveryNMonths, anchor: anchor, every: n, day: dayOfMonth, hour: hour, minute: minute}
	if err := r.checkEvery(); err != nil {
		return Rule{}, err
	}
	if err := r.checkDay(); err != nil {
		return Rule{}, err
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewEveryNYears returns a rule producing an occurrence on month/day of
// every n-th year, counted from the year of anchor. Years lacking the day
// (February 29) are skipped.
func NewEveryNYears(anchor Date, n int, month time.Month, dayOfMonth, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindEveryNYears, anchor: anchor, every: n, month: month, day: dayOfMonth, hour: hour, minute: minute}
	if err := r.checkEvery(); err != nil {
		return Rule{}, err
	}
	if month < time.January || month > time.December {
		return Rule{}, invalid(r.kind, "month", "must be 1-12, got %d", month)
	}
	if err := r.checkDay(); err != nil {
		return Rule{}, err
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewMonthlyDirect returns a rule producing an occurrence on the given day
// of each selected month. Months lacking the day are skipped, so a
// February-only, day-31 rule is valid but never fires.
func NewMonthlyDirect(months []time.Month, dayOfMonth, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindMonthlyDirect, day: dayOfMonth, hour: hour, minute: minute}
	if err := r.setMonths(months); err != nil {
		return Rule{}, err
	}
	if err := r.checkDay(); err != nil {
		return Rule{}, err
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewMonthlyInverse is NewMonthlyDirect with the day counted backwards from
// the end of the month: 1 is the last day, 2 the one before, and so on.
func NewMonthlyInverse(months []time.Month, dayFromEnd, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindMonthlyInverse, day: dayFromEnd, hour: hour, minute: minute}
	if err := r.setMonths(months); err != nil {
		return Rule{}, err
	}
	if err := r.checkDay(); err != nil {
		return Rule{}, err
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewMonthlyWeekday returns a rule producing an occurrence on the
// ordinal-th weekday of each selected month; negative ordinals count from
// the end (-1 is the last). Months without a fifth weekday are skipped.
func NewMonthlyWeekday(months []time.Month, weekday time.Weekday, ordinal, hour, minute int, opts ...Option) (Rule, error) {
	r := Rule{kind: KindMonthlyWeekday, weekday: weekday, ordinal: ordinal, hour: hour, minute: minute}
	if err := r.setMonths(months); err != nil {
		return Rule{}, err
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return Rule{}, invalid(r.kind, "weekday", "unknown weekday %d", weekday)
	}
	if ordinal == 0 || ordinal < -5 || ordinal > 5 {
		return Rule{}, invalid(r.kind, "ordinal", "must be 1..5 or -1..-5, got %d", ordinal)
	}
	if err := r.checkClock(); err != nil {
		return Rule{}, err
	}
	return r.finish(opts)
}

// NewExceptOnce returns a rule removing the item's occurrences that overlap
// [start, end] when inclusive, or that fall entirely inside it otherwise.
func NewExceptOnce(start, end time.Time, inclusive bool, opts ...Option) (Rule, error) {
	r := Rule{kind: KindExceptOnce, start: start, until: end, inclusive: inclusive}
	if end.Before(start) {
		return Rule{}, invalid(r.kind, "end", "must not be before start")
	}
	r, err := r.finish(opts)
	if err != nil {
		return Rule{}, err
	}
	if r.end.IsPresent() || r.alarm.IsPresent() {
		return Rule{}, invalid(r.kind, "options", "exceptions take no end or alarm")
	}
	return r, nil
}

// finish applies the common options, validates them and computes the
// lookback span.
func (r Rule) finish(opts []Option) (Rule, error) {
	for _, opt := range opts {
		opt(&r)
	}
	if r.standard != Local && r.standard != UTC {
		return Rule{}, invalid(r.kind, "standard", "unknown time standard %d", r.standard)
	}
	if end, ok := r.end.Get(); ok {
		if end <= 0 || end%time.Second != 0 {
			return Rule{}, invalid(r.kind, "end", "must be a positive whole number of seconds, got %v", end)
		}
	}
	if alarm, ok := r.alarm.Get(); ok && alarm%time.Second != 0 {
		return Rule{}, invalid(r.kind, "alarm", "must be a whole number of seconds, got %v", alarm)
	}
	switch r.kind {
	case KindEveryNMonths, KindEveryNYears, KindMonthlyDirect, KindMonthlyInverse, KindMonthlyWeekday:
		// Recomputed now that end and alarm are known.
		r.lookback = r.monthFamilyLookback()
	default:
		r.lookback = r.span()
	}
	return r, nil
}

func (r Rule) monthFamilyLookback() time.Duration {
	switch r.kind {
	case KindMonthlyInverse:
		return monthLookback(r.span(), time.Duration(r.day-1)*day-clock(r.hour, r.minute))
	case KindMonthlyWeekday:
		if r.ordinal > 0 {
			return monthLookback(r.span(), time.Duration(28-7*r.ordinal)*day-clock(r.hour, r.minute))
		}
		return monthLookback(r.span(), time.Duration(-7*r.ordinal-7)*day-clock(r.hour, r.minute))
	default:
		return monthLookback(r.span(), directGap(r.day, r.hour, r.minute))
	}
}

func (r *Rule) setMonths(months []time.Month) error {
	if len(months) == 0 {
		return invalid(r.kind, "months", "must not be empty")
	}
	for _, m := range months {
		if m < time.January || m > time.December {
			return invalid(r.kind, "months", "must be 1-12, got %d", m)
		}
	}
	r.months = slices.Compact(slices.Sorted(slices.Values(months)))
	return nil
}

func (r Rule) checkEvery() error {
	if r.every < 1 {
		return invalid(r.kind, "every", "must be at least 1, got %d", r.every)
	}
	if !r.anchor.Valid() {
		return invalid(r.kind, "anchor", "%s is not a calendar date", r.anchor)
	}
	return nil
}

func (r Rule) checkDay() error {
	if r.day < 1 || r.day > 31 {
		return invalid(r.kind, "day", "must be 1-31, got %d", r.day)
	}
	return nil
}

func (r Rule) checkClock() error {
	if r.hour < 0 || r.hour > 23 {
		return invalid(r.kind, "hour", "must be 0-23, got %d", r.hour)
	}
	if r.minute < 0 || r.minute > 59 {
		return invalid(r.kind, "minute", "must be 0-59, got %d", r.minute)
	}
	return nil
}

func clock(hour, minute int) time.Duration {
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
}

// directGap is the shortest distance between an occurrence on dayOfMonth at
// hour:minute and the end of its month. The month is assumed to have 28
// days less one, which leaves room for a DST change.
func directGap(dayOfMonth, hour, minute int) time.Duration {
	return time.Duration(28-dayOfMonth)*day - clock(hour, minute)
}

// monthLookback steps back only as far as an occurrence can spill over the
// end of its month.
func monthLookback(span, gap time.Duration) time.Duration {
	return max(span-max(gap, 0), 0)
}
