// Package search expands recurrence rules into concrete occurrences.
//
// Every rule family is turned into an ascending stream of candidates: calendar
// families walk civil slots (days, weeks, months) and convert them to instants
// in the rule's time standard, absolute families step arithmetically. Two
// drivers consume the stream: Range fills a window, Next finds the earliest
// occurrence due after a base time. Both are pure and never block.
package search

import (
	"iter"
	"time"

	"agenda/internal/model"
	"agenda/internal/occur"
	"agenda/internal/rule"
	"agenda/internal/tz"
)

// Horizon bounds the next-occurrence scan over unrepresentable month slots
// while no occurrence has been found yet.
const Horizon = 4 * 7 * 24 * time.Hour

// Source identifies the item the produced occurrences belong to.
type Source struct {
	ContainerID string
	ItemID      string
}

// Range feeds sink every occurrence of r the scan over [min, max] reaches.
// The sink decides which ones touch the window; an occur.Range does.
func Range(r rule.Rule, min, max time.Time, zone tz.Resolver, src Source, sink occur.Sink) {
	scanRange(r, min, max, zone, src, nil, func(o model.Occurrence) bool {
		sink.Add(o)
		return true
	})
}

// RangeSeq returns the occurrences of r touching [min, max] lazily, in scan
// order. Each iteration rescans from min.
func RangeSeq(r rule.Rule, min, max time.Time, zone tz.Resolver, src Source) iter.Seq[model.Occurrence] {
	return func(yield func(model.Occurrence) bool) {
		window := occur.NewRange(min, max)
		scanRange(r, min, max, zone, src, nil, func(o model.Occurrence) bool {
			if !window.Add(o) {
				return true
			}
			return yield(o)
		})
	}
}

// Next offers next the occurrences of r that may be due earliest after the
// collector's base.
func Next(r rule.Rule, zone tz.Resolver, src Source, next *occur.Next) {
	scanNext(r, zone, src, nil, next)
}

// ItemRange collects the occurrences of one item's rules touching the
// window of col. Exception rules remove the occurrences they cover.
func ItemRange(rules []rule.Rule, zone tz.Resolver, src Source, col *occur.Range) {
	keep := exceptions(rules)
	for _, r := range rules {
		if r.IsException() {
			continue
		}
		scanRange(r, col.Min(), col.Max(), zone, src, keep, func(o model.Occurrence) bool {
			col.Add(o)
			return true
		})
	}
}

// ItemNext offers next the occurrences of one item's rules, skipping the
// ones covered by an exception rule.
func ItemNext(rules []rule.Rule, zone tz.Resolver, src Source, next *occur.Next) {
	keep := exceptions(rules)
	for _, r := range rules {
		if r.IsException() {
			continue
		}
		scanNext(r, zone, src, keep, next)
	}
}

func scanRange(r rule.Rule, min, max time.Time, zone tz.Resolver, src Source, keep func(model.Occurrence) bool, emit func(model.Occurrence) bool) {
	maxDate := dateIn(max, r.Standard(), zone)
	for c := range candidates(r, min.Add(-r.Lookback()), zone, src) {
		if !c.valid {
			if c.probe.Compare(maxDate) > 0 {
				return
			}
			continue
		}
		if c.occ.Start.After(max) && dueAfter(c.occ, max) {
			return
		}
		if keep != nil && !keep(c.occ) {
			continue
		}
		if !emit(c.occ) {
			return
		}
	}
}

func scanNext(r rule.Rule, zone tz.Resolver, src Source, keep func(model.Occurrence) bool, next *occur.Next) {
	base := next.Base()
	horizon := base.Add(Horizon)
	for c := range candidates(r, base.Add(-r.Lookback()), zone, src) {
		limit := horizon
		if t, ok := next.Time(); ok {
			limit = t
		}
		if !c.valid {
			if c.probe.Compare(dateIn(limit, r.Standard(), zone)) > 0 {
				return
			}
			continue
		}
		if keep != nil && !keep(c.occ) {
			// Exceptions can cover an unbounded stretch of candidates.
			if c.occ.Start.After(limit) && dueAfter(c.occ, limit) {
				return
			}
			continue
		}
		next.Add(c.occ)
		if next.Beyond(c.occ) {
			return
		}
	}
}

// dueAfter reports whether o has no alarm or an alarm after t.
func dueAfter(o model.Occurrence, t time.Time) bool {
	alarm, ok := o.Alarm.Get()
	return !ok || alarm.After(t)
}

// exceptions returns a filter dropping the occurrences covered by the
// except_once rules among rules, or nil when there are none.
func exceptions(rules []rule.Rule) func(model.Occurrence) bool {
	var except []rule.Rule
	for _, r := range rules {
		if r.IsException() {
			except = append(except, r)
		}
	}
	if len(except) == 0 {
		return nil
	}
	return func(o model.Occurrence) bool {
		for _, ex := range except {
			if Excludes(ex, o) {
				return false
			}
		}
		return true
	}
}

// Excludes reports whether the except_once rule ex covers o. An inclusive
// exception removes every occurrence overlapping its span; otherwise only
// occurrences lying entirely within it are removed.
func Excludes(ex rule.Rule, o model.Occurrence) bool {
	if !ex.IsException() {
		return false
	}
	start, stop := o.Start, o.Stop()
	if ex.Inclusive() {
		return !start.After(ex.Until()) && !stop.Before(ex.Start())
	}
	return !start.Before(ex.Start()) && !stop.After(ex.Until())
}
