// Package rule describes recurring and single-shot time patterns.
//
// A Rule is an immutable, validated value produced by one of the family
// constructors (NewOnce, NewMonthlyDirect, ...). It carries only the
// precomputed scalars the search algorithms in internal/search need, so no
// invalid rule can ever reach them.
package rule

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Standard selects how wall-clock fields are interpreted.
type Standard int

const (
	// Local interprets wall-clock fields in the configured zone, subject to DST.
	Local Standard = iota
	// UTC interprets wall-clock fields in UTC.
	UTC
)

func (s Standard) String() string {
	if s == UTC {
		return "UTC"
	}
	return "local"
}

// ParseStandard parses "local" or "UTC" (case-insensitive).
func ParseStandard(s string) (Standard, error) {
	switch strings.ToLower(s) {
	case "local", "":
		return Local, nil
	case "utc":
		return UTC, nil
	default:
		return Local, fmt.Errorf("unknown time standard %q", s)
	}
}

// Kind names a rule family.
type Kind string

const (
	KindOnce           Kind = "occur_once"
	KindEveryInterval  Kind = "occur_every_interval"
	KindEveryNDays     Kind = "occur_every_n_days"
	KindEveryNWeeks    Kind = "occur_every_n_weeks"
	KindEveryNMonths   Kind = "occur_every_n_months"
	KindEveryNYears    Kind = "occur_every_n_years"
	KindMonthlyDirect  Kind = "occur_monthly_number_direct"
	KindMonthlyInverse Kind = "occur_monthly_number_inverse"
	KindMonthlyWeekday Kind = "occur_monthly_weekday"
	KindExceptOnce     Kind = "except_once"
)

// Kinds lists every rule family.
var Kinds = []Kind{
	KindOnce,
	KindEveryInterval,
	KindEveryNDays,
	KindEveryNWeeks,
	KindEveryNMonths,
	KindEveryNYears,
	KindMonthlyDirect,
	KindMonthlyInverse,
	KindMonthlyWeekday,
	KindExceptOnce,
}

// Rule is a validated recurrence pattern for one scheduled item.
//
// Only the family parameters of Kind() are meaningful; the search
// dispatch switches on Kind() exhaustively.
type Rule struct {
	kind     Kind
	standard Standard
	end      mo.Option[time.Duration]
	alarm    mo.Option[time.Duration]
	gui      json.RawMessage
	lookback time.Duration

	// occur_once, except_once, occur_every_interval (reference start)
	start time.Time
	// except_once
	until     time.Time
	inclusive bool
	// occur_every_interval
	interval time.Duration

	// occur_every_n_*
	anchor Date
	every  int

	// calendar families
	months   []time.Month
	weekdays []time.Weekday
	weekday  time.Weekday
	ordinal  int
	month    time.Month
	day      int
	hour     int
	minute   int
}

// Option sets a parameter common to all families.
type Option func(*Rule)

// WithEnd gives occurrences a duration; d must be positive.
func WithEnd(d time.Duration) Option {
	return func(r *Rule) { r.end = mo.Some(d) }
}

// WithAlarm sets the alarm advance: positive fires before the start,
// negative fires after it (late alarm), zero fires at the start.
func WithAlarm(d time.Duration) Option {
	return func(r *Rule) { r.alarm = mo.Some(d) }
}

// WithStandard sets the time standard; the default is Local.
func WithStandard(s Standard) Option {
	return func(r *Rule) { r.standard = s }
}

// WithGUIConfig attaches an opaque payload for the presentation layer.
func WithGUIConfig(raw json.RawMessage) Option {
	return func(r *Rule) { r.gui = slices.Clone(raw) }
}

func (r Rule) Kind() Kind                      { return r.kind }
func (r Rule) Standard() Standard              { return r.standard }
func (r Rule) End() mo.Option[time.Duration]   { return r.end }
func (r Rule) Alarm() mo.Option[time.Duration] { return r.alarm }
func (r Rule) GUIConfig() json.RawMessage      { return slices.Clone(r.gui) }

// Lookback is the span a range search must step back from the window start
// so that occurrences still running (or with a late alarm) at the window
// start are not missed.
func (r Rule) Lookback() time.Duration { return r.lookback }

// Start is the occurrence start of occur_once, the exception start of
// except_once and the reference start of occur_every_interval.
func (r Rule) Start() time.Time { return r.start }

// Until is the exception end of except_once.
func (r Rule) Until() time.Time { return r.until }

// Inclusive reports whether an except_once rule removes every overlapping
// occurrence rather than only the ones it fully contains.
func (r Rule) Inclusive() bool { return r.inclusive }

// Interval is the fixed step of occur_every_interval.
func (r Rule) Interval() time.Duration { return r.interval }

// Anchor is the alignment date of the occur_every_n_* families.
func (r Rule) Anchor() Date { return r.anchor }

// Every is N of the occur_every_n_* families.
func (r Rule) Every() int { return r.every }

// Months returns the selected months in ascending order.
func (r Rule) Months() []time.Month { return slices.Clone(r.months) }

// Weekdays returns the selected weekdays in ascending order (Sunday first).
func (r Rule) Weekdays() []time.Weekday { return slices.Clone(r.weekdays) }

func (r Rule) Weekday() time.Weekday { return r.weekday }

// Ordinal is 1..5 for the nth weekday of the month, -1..-5 counting from
// the end of the month.
func (r Rule) Ordinal() int { return r.ordinal }

func (r Rule) Month() time.Month { return r.month }
func (r Rule) Day() int          { return r.day }
func (r Rule) Hour() int         { return r.hour }
func (r Rule) Minute() int       { return r.minute }

// IsException reports whether r removes occurrences instead of producing
// them.
func (r Rule) IsException() bool { return r.kind == KindExceptOnce }

// span is the largest distance between an occurrence's start and its end
// or (late) alarm.
func (r Rule) span() time.Duration {
	s := time.Duration(0)
	if end, ok := r.end.Get(); ok && end > s {
		s = end
	}
	if alarm, ok := r.alarm.Get(); ok && -alarm > s {
		s = -alarm
	}
	return s
}

// Date is a civil date without time or zone.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Valid reports whether d names an existing calendar day.
func (d Date) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= DaysIn(d.Year, d.Month)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
