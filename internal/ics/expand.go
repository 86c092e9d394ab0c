package ics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "agenda/internal/log"
	"agenda/internal/rule"
	"agenda/internal/store"
	"agenda/internal/tz"
)

const defaultMaxOccurrencesPerEvent = 5000

// ImportConfig controls how events become items.
type ImportConfig struct {
	// Zone is the agenda's timezone. Recurring events stated in it, or in
	// UTC, become native rules; others are expanded.
	Zone tz.Zone

	// From and Horizon bound the expansion of recurring events that have
	// no native rule.
	From    time.Time
	Horizon time.Duration

	// MaxOccurrencesPerEvent caps one expansion. Zero means 5000.
	MaxOccurrencesPerEvent int
}

// ImportResult lists the items built from a set of events.
type ImportResult struct {
	Items []store.Item
	// Expanded records the UIDs expanded into single occurrences.
	Expanded []string
	// Truncated records the UIDs whose expansion hit the cap.
	Truncated []string
}

// ToItems turns parsed events into items, one per UID. The item ID is the
// event UID so that importing a calendar twice replaces its items.
func ToItems(events []Event, cfg ImportConfig) (ImportResult, error) {
	var result ImportResult
	if cfg.Horizon <= 0 {
		return result, errors.New("import: horizon must be positive")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var (
		order     []string
		base      = make(map[string]Event)
		overrides = make(map[string][]Event)
	)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, dup := base[ev.UID]; !dup {
			order = append(order, ev.UID)
		}
		base[ev.UID] = ev
	}

	for _, uid := range order {
		ev := base[uid]
		rules, how, err := eventRules(ev, overrides[uid], cfg)
		if err != nil {
			appLog.Error("ics event skipped", err, "uid", uid, "source", ev.Source.ID)
			continue
		}
		switch how {
		case expanded:
			result.Expanded = append(result.Expanded, uid)
		case truncated:
			result.Expanded = append(result.Expanded, uid)
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("ics expansion truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
		result.Items = append(result.Items, store.Item{ID: uid, Text: ev.Summary, Rules: rules})
	}
	return result, nil
}

type conversion int

const (
	native conversion = iota
	expanded
	truncated
)

func eventRules(ev Event, overrides []Event, cfg ImportConfig) ([]rule.Rule, conversion, error) {
	if ev.RawRRule == "" {
		r, err := onceRule(ev, ev.Start)
		if err != nil {
			return nil, native, err
		}
		return []rule.Rule{r}, native, nil
	}

	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, native, fmt.Errorf("RRULE %q: %w", ev.RawRRule, err)
	}
	if std, ok := standardFor(ev, cfg.Zone); ok {
		if r, ok, err := nativeRule(ev, *opt, std); err != nil {
			return nil, native, err
		} else if ok {
			rules, err := exceptions(ev, overrides, r)
			return rules, native, err
		}
	}
	return expand(ev, *opt, overrides, cfg)
}

// standardFor decides in which time standard a native rule reproduces the
// event's wall clock.
func standardFor(ev Event, zone tz.Zone) (rule.Standard, bool) {
	switch ev.Start.Location().String() {
	case time.UTC.String():
		return rule.UTC, true
	case zone.String():
		return rule.Local, true
	}
	return rule.Local, false
}

func commonOptions(ev Event, std rule.Standard) []rule.Option {
	opts := []rule.Option{rule.WithStandard(std)}
	if d := ev.End.Sub(ev.Start).Truncate(time.Second); d > 0 {
		opts = append(opts, rule.WithEnd(d))
	}
	if a, ok := ev.Alarm.Get(); ok {
		opts = append(opts, rule.WithAlarm(a))
	}
	return opts
}

func onceRule(ev Event, start time.Time) (rule.Rule, error) {
	return rule.NewOnce(start, commonOptions(ev, rule.Local)...)
}

// nativeRule maps the RRULE shapes the rule families express directly.
// ok is false for anything else, including bounded rules.
func nativeRule(ev Event, opt rrule.ROption, std rule.Standard) (rule.Rule, bool, error) {
	if opt.Count > 0 || !opt.Until.IsZero() || len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 ||
		len(opt.Byeaster) > 0 {
		return rule.Rule{}, false, nil
	}
	start := ev.Start
	if std == rule.UTC {
		start = start.UTC()
	}
	anchor := rule.DateOf(start)
	every := max(opt.Interval, 1)
	hour, minute := start.Hour(), start.Minute()
	opts := commonOptions(ev, std)

	months := make([]time.Month, 0, len(opt.Bymonth))
	for _, m := range opt.Bymonth {
		months = append(months, time.Month(m))
	}

	var (
		r   rule.Rule
		err error
	)
	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byweekday) > 0 {
			return rule.Rule{}, false, nil
		}
		r, err = rule.NewEveryNDays(anchor, every, hour, minute, opts...)

	case rrule.WEEKLY:
		if len(opt.Bymonth)+len(opt.Bymonthday) > 0 || (every > 1 && opt.Wkst.Day() != rrule.MO.Day()) {
			return rule.Rule{}, false, nil
		}
		days := []time.Weekday{start.Weekday()}
		if len(opt.Byweekday) > 0 {
			days = days[:0]
			for _, wd := range opt.Byweekday {
				if wd.N() != 0 {
					return rule.Rule{}, false, nil
				}
				days = append(days, weekdayOf(wd))
			}
		}
		r, err = rule.NewEveryNWeeks(anchor, every, days, hour, minute, opts...)

	case rrule.MONTHLY:
		var ok bool
		r, ok, err = monthlyRule(opt, anchor, every, months, hour, minute, opts)
		if err == nil && !ok {
			return rule.Rule{}, false, nil
		}

	case rrule.YEARLY:
		if len(opt.Byweekday) > 0 || len(opt.Bymonth) > 1 || len(opt.Bymonthday) > 1 {
			return rule.Rule{}, false, nil
		}
		month, day := start.Month(), start.Day()
		if len(opt.Bymonth) == 1 {
			month = time.Month(opt.Bymonth[0])
		}
		if len(opt.Bymonthday) == 1 {
			if opt.Bymonthday[0] < 0 {
				return rule.Rule{}, false, nil
			}
			day = opt.Bymonthday[0]
		}
		r, err = rule.NewEveryNYears(anchor, every, month, day, hour, minute, opts...)

	default:
		return rule.Rule{}, false, nil
	}
	if err != nil {
		return rule.Rule{}, false, err
	}
	return r, true, nil
}

// monthlyRule maps FREQ=MONTHLY; ok is false when no family fits.
func monthlyRule(opt rrule.ROption, anchor rule.Date, every int, months []time.Month, hour, minute int, opts []rule.Option) (rule.Rule, bool, error) {
	if len(opt.Bymonthday)+len(opt.Byweekday) > 1 {
		return rule.Rule{}, false, nil
	}
	if every > 1 {
		day := anchor.Day
		if len(opt.Bymonthday) == 1 {
			day = opt.Bymonthday[0]
		}
		if len(months) > 0 || len(opt.Byweekday) > 0 || day < 1 {
			return rule.Rule{}, false, nil
		}
		r, err := rule.NewEveryNMonths(anchor, every, day, hour, minute, opts...)
		return r, true, err
	}
	if len(months) == 0 {
		months = []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}

	var (
		r   rule.Rule
		err error
	)
	switch {
	case len(opt.Byweekday) == 1:
		wd := opt.Byweekday[0]
		if wd.N() == 0 {
			return rule.Rule{}, false, nil
		}
		r, err = rule.NewMonthlyWeekday(months, weekdayOf(wd), wd.N(), hour, minute, opts...)
	case len(opt.Bymonthday) == 1 && opt.Bymonthday[0] < 0:
		r, err = rule.NewMonthlyInverse(months, -opt.Bymonthday[0], hour, minute, opts...)
	case len(opt.Bymonthday) == 1:
		r, err = rule.NewMonthlyDirect(months, opt.Bymonthday[0], hour, minute, opts...)
	default:
		r, err = rule.NewMonthlyDirect(months, anchor.Day, hour, minute, opts...)
	}
	return r, true, err
}

// weekdayOf converts rrule-go's Monday-based day to time.Weekday.
func weekdayOf(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

// exceptions completes a native rule: nothing before DTSTART, one
// except_once per EXDATE and per overridden instance, and a single
// occurrence for each override.
func exceptions(ev Event, overrides []Event, r rule.Rule) ([]rule.Rule, error) {
	before, err := rule.NewExceptOnce(time.Time{}, ev.Start.Add(-time.Second), true)
	if err != nil {
		return nil, err
	}
	rules := []rule.Rule{r, before}
	skip := slices.Clone(ev.ExDates)
	for _, ov := range overrides {
		skip = append(skip, *ov.Recurrence)
	}
	for _, t := range skip {
		ex, err := rule.NewExceptOnce(t, t, true)
		if err != nil {
			return nil, err
		}
		rules = append(rules, ex)
	}
	for _, ov := range overrides {
		once, err := onceRule(ov, ov.Start)
		if err != nil {
			return nil, err
		}
		rules = append(rules, once)
	}
	return rules, nil
}

// expand materializes the RRULE within [From, From+Horizon] as one
// occur_once rule per instance. EXDATEs are removed and overridden
// instances replaced.
func expand(ev Event, opt rrule.ROption, overrides []Event, cfg ImportConfig) ([]rule.Rule, conversion, error) {
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, native, fmt.Errorf("RRULE %q: %w", ev.RawRRule, err)
	}
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.From.In(loc), cfg.From.Add(cfg.Horizon).In(loc), true)
	how := expanded
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		how = truncated
	}

	rules := make([]rule.Rule, 0, len(starts))
	for _, start := range starts {
		src := ev
		if ov, ok := findOverride(overrides, start); ok {
			src, start = ov, ov.Start
		}
		once, err := onceRule(src, start)
		if err != nil {
			return nil, native, err
		}
		rules = append(rules, once)
	}
	return rules, how, nil
}

func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return Event{}, false
}
