package model

import (
	"time"

	"github.com/samber/mo"
)

// Occurrence represents a single concrete instance of a scheduled item,
// produced by evaluating one of the item's rules.
//
// Occurrences are values: they are produced by the search algorithms and
// never mutated afterwards.
type Occurrence struct {
	ContainerID string // owning document
	ItemID      string

	Start time.Time
	End   mo.Option[time.Time] // None for open-ended occurrences
	Alarm mo.Option[time.Time] // None when the item has no alarm
}

// Key is a comparable identity of an Occurrence, independent of the
// *time.Location attached to its instants.
type Key struct {
	ContainerID string
	ItemID      string
	Start       int64
	End         int64
	HasEnd      bool
	Alarm       int64
	HasAlarm    bool
}

// Key returns the de-duplication key of o.
func (o Occurrence) Key() Key {
	k := Key{
		ContainerID: o.ContainerID,
		ItemID:      o.ItemID,
		Start:       o.Start.UnixNano(),
	}
	if end, ok := o.End.Get(); ok {
		k.End, k.HasEnd = end.UnixNano(), true
	}
	if alarm, ok := o.Alarm.Get(); ok {
		k.Alarm, k.HasAlarm = alarm.UnixNano(), true
	}
	return k
}

// Due returns the instant o fires at: its alarm when it has one, otherwise
// its start.
func (o Occurrence) Due() time.Time {
	if alarm, ok := o.Alarm.Get(); ok {
		return alarm
	}
	return o.Start
}

// Stop returns the instant o stops occupying time: its end, or its start
// for open-ended occurrences.
func (o Occurrence) Stop() time.Time {
	return o.End.OrElse(o.Start)
}

// In returns a copy of o with every instant converted to loc.
func (o Occurrence) In(loc *time.Location) Occurrence {
	out := o
	out.Start = o.Start.In(loc)
	if end, ok := o.End.Get(); ok {
		out.End = mo.Some(end.In(loc))
	}
	if alarm, ok := o.Alarm.Get(); ok {
		out.Alarm = mo.Some(alarm.In(loc))
	}
	return out
}

// ActiveAlarm is an occurrence whose alarm has fired and has not been
// dismissed yet. Alarm bookkeeping beyond this flag belongs to the storage
// layer.
type ActiveAlarm struct {
	Occurrence
	ActivatedAt time.Time
}
