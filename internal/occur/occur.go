// Package occur accumulates the occurrences produced by one search call.
//
// A collector is created per search invocation and discarded once its
// results have been read. Range collects every occurrence touching a time
// window; Next keeps only the occurrences due earliest after a base time.
package occur

import (
	"cmp"
	"slices"
	"time"

	"agenda/internal/model"
)

// Sink receives the occurrences a rule algorithm produces. Add reports
// whether the occurrence was kept.
type Sink interface {
	Add(o model.Occurrence) bool
}

// Range collects the occurrences that touch the window [min, max]: the
// ones starting inside it, the ones still running at min and the ones whose
// alarm fires inside it.
type Range struct {
	min, max time.Time
	seen     map[model.Key]struct{}
	list     []model.Occurrence
}

var _ Sink = (*Range)(nil)

// NewRange returns an empty collector for [min, max].
func NewRange(min, max time.Time) *Range {
	return &Range{
		min:  min,
		max:  max,
		seen: make(map[model.Key]struct{}),
	}
}

// Min returns the window start.
func (r *Range) Min() time.Time { return r.min }

// Max returns the window end.
func (r *Range) Max() time.Time { return r.max }

// Contains reports whether o touches the window.
func (r *Range) Contains(o model.Occurrence) bool {
	if !o.Start.Before(r.min) && !o.Start.After(r.max) {
		return true
	}
	if end, ok := o.End.Get(); ok && o.Start.Before(r.min) && end.After(r.min) {
		return true
	}
	if alarm, ok := o.Alarm.Get(); ok && !alarm.Before(r.min) && !alarm.After(r.max) {
		return true
	}
	return false
}

// Add implements Sink.
func (r *Range) Add(o model.Occurrence) bool {
	if !r.Contains(o) {
		return false
	}
	k := o.Key()
	if _, dup := r.seen[k]; dup {
		return false
	}
	r.seen[k] = struct{}{}
	r.list = append(r.list, o)
	return true
}

// Len returns the number of collected occurrences.
func (r *Range) Len() int { return len(r.list) }

// Occurrences returns the collected occurrences ordered by start, then by
// container and item.
func (r *Range) Occurrences() []model.Occurrence {
	out := slices.Clone(r.list)
	Sort(out)
	return out
}

// Sort orders occurrences by start, container, item, end and alarm.
func Sort(list []model.Occurrence) {
	slices.SortStableFunc(list, func(a, b model.Occurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ContainerID, b.ContainerID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ItemID, b.ItemID); c != 0 {
			return c
		}
		if c := a.Stop().Compare(b.Stop()); c != 0 {
			return c
		}
		return a.Due().Compare(b.Due())
	})
}

// Next keeps the occurrences due earliest strictly after a base time. It
// is fed by the incremental search of every rule of every open document;
// the best known instant lets each rule stop scanning early.
type Next struct {
	base time.Time
	next time.Time
	seen map[model.Key]struct{}
	list []model.Occurrence
}

var _ Sink = (*Next)(nil)

// NewNext returns an empty collector for occurrences due after base.
func NewNext(base time.Time) *Next {
	return &Next{
		base: base,
		seen: make(map[model.Key]struct{}),
	}
}

// Base returns the base time.
func (n *Next) Base() time.Time { return n.base }

// Time returns the best known next instant, if any.
func (n *Next) Time() (time.Time, bool) {
	return n.next, !n.next.IsZero()
}

// Add implements Sink. An occurrence due after the best known instant is
// dropped, one due at it joins the tied set and an earlier one replaces it.
func (n *Next) Add(o model.Occurrence) bool {
	due := o.Due()
	if !due.After(n.base) {
		return false
	}
	if !n.next.IsZero() {
		switch due.Compare(n.next) {
		case 1:
			return false
		case -1:
			n.reset()
		}
	}
	k := o.Key()
	if _, dup := n.seen[k]; dup {
		return false
	}
	n.next = due
	n.seen[k] = struct{}{}
	n.list = append(n.list, o)
	return true
}

// Beyond reports whether o, and every later occurrence of a rule whose
// starts and alarms advance together, can no longer improve the result:
// both its start and its alarm are after the best known instant.
func (n *Next) Beyond(o model.Occurrence) bool {
	if n.next.IsZero() || !o.Start.After(n.next) {
		return false
	}
	if alarm, ok := o.Alarm.Get(); ok && !alarm.After(n.next) {
		return false
	}
	return true
}

// Occurrences returns the occurrences due at the best known instant.
func (n *Next) Occurrences() []model.Occurrence {
	out := slices.Clone(n.list)
	Sort(out)
	return out
}

func (n *Next) reset() {
	n.next = time.Time{}
	clear(n.seen)
	n.list = n.list[:0]
}
