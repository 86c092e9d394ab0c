// Package tz resolves UTC offsets for arbitrary instants.
//
// A single recurrence rule stated in wall-clock fields can produce
// occurrences on both sides of a DST transition, so the offset is resolved
// per instant and never cached on the rule.
package tz

import (
	"time"
)

// Resolver maps instants to a civil calendar: Location gives the wall
// clock and Offset the offset east of UTC in effect at t.
type Resolver interface {
	Location() *time.Location
	Offset(t time.Time) time.Duration
}

// Zone is a Resolver backed by a *time.Location. The zero value resolves
// against time.Local.
type Zone struct {
	loc *time.Location
}

var _ Resolver = Zone{}

// NewZone returns a Zone for loc; a nil loc means time.Local.
func NewZone(loc *time.Location) Zone {
	return Zone{loc: loc}
}

// Load returns the Zone named by an IANA timezone name. An empty name
// selects time.Local.
func Load(name string) (Zone, error) {
	if name == "" {
		return Zone{}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, err
	}
	return Zone{loc: loc}, nil
}

// Location implements Resolver.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.Local
	}
	return z.loc
}

// Offset implements Resolver.
func (z Zone) Offset(t time.Time) time.Duration {
	_, secs := t.In(z.Location()).Zone()
	return time.Duration(secs) * time.Second
}

// String returns the location name.
func (z Zone) String() string {
	return z.Location().String()
}
