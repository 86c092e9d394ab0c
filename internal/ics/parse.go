package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/samber/mo"

	appLog "agenda/internal/log"
)

// Event is a VEVENT reduced to what the agenda can schedule.
type Event struct {
	Source Source

	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Alarm is the advance of the first VALARM before Start; negative
	// when it fires after Start.
	Alarm mo.Option[time.Duration]

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

// IsOverride reports whether ev replaces one instance of a recurring event.
func (ev Event) IsOverride() bool { return ev.Recurrence != nil }

// Parse reads the VEVENTs of one ICS payload. Events that cannot be read
// are logged and skipped.
func Parse(src Source, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.ID, err)
	}

	var events []Event
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(src, comp)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "source", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parsed", "source", src.ID, "events", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (Event, error) {
	out := Event{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.AllDay = !strings.Contains(p.Value, "T") || hasParam(p.ICalParameters, "VALUE", "DATE")
	}
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if out.AllDay {
		out.End = out.Start.AddDate(0, 0, 1)
	} else {
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := paramLocation(p.ICalParameters, out.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		loc := paramLocation(p.ICalParameters, out.Start.Location())
		if t, err := parseTime(p.Value, loc); err == nil {
			out.Recurrence = &t
		}
	}

	for _, a := range ve.Alarms() {
		p := a.GetProperty(ical.ComponentProperty("TRIGGER"))
		if p == nil {
			continue
		}
		advance, err := triggerAdvance(p.Value, p.ICalParameters, out)
		if err != nil {
			appLog.Warn("ics alarm ignored", "uid", out.UID, "trigger", p.Value, "err", err)
			continue
		}
		out.Alarm = mo.Some(advance)
		break
	}

	return out, nil
}

// triggerAdvance turns a TRIGGER value into an advance before the start.
func triggerAdvance(value string, params map[string][]string, ev Event) (time.Duration, error) {
	if hasParam(params, "VALUE", "DATE-TIME") {
		t, err := parseTime(value, time.UTC)
		if err != nil {
			return 0, err
		}
		return ev.Start.Sub(t).Truncate(time.Second), nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return 0, err
	}
	if hasParam(params, "RELATED", "END") {
		d += ev.End.Sub(ev.Start)
	}
	return -d, nil
}

var durationUnits = map[rune]time.Duration{
	'W': 7 * 24 * time.Hour,
	'D': 24 * time.Hour,
	'H': time.Hour,
	'M': time.Minute,
	'S': time.Second,
}

// parseDuration reads an RFC 5545 dur-value such as "-PT15M" or "P1DT2H".
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	s = s[1:]

	var (
		total  time.Duration
		inTime bool
		num    strings.Builder
	)
	for _, c := range s {
		switch {
		case c == 'T':
			inTime = true
		case c >= '0' && c <= '9':
			num.WriteRune(c)
		default:
			n, err := strconv.Atoi(num.String())
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			num.Reset()
			unit, ok := durationUnits[c]
			if !ok || (inTime && (c == 'W' || c == 'D')) || (!inTime && (c == 'H' || c == 'S')) {
				return 0, fmt.Errorf("invalid duration unit %q", c)
			}
			if c == 'M' && !inTime {
				return 0, errors.New("months are not a fixed duration")
			}
			total += time.Duration(n) * unit
		}
	}
	if num.Len() > 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return sign * total, nil
}

// parseTime parses a DATE or DATE-TIME value; floating times use loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func hasParam(params map[string][]string, key, value string) bool {
	for _, v := range params[key] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func paramLocation(params map[string][]string, fallback *time.Location) *time.Location {
	if ids := params["TZID"]; len(ids) > 0 {
		if loc, err := time.LoadLocation(ids[0]); err == nil {
			return loc
		}
	}
	return fallback
}
