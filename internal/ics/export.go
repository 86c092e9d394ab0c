package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"agenda/internal/model"
)

// Export writes occurrences as a VCALENDAR, one VEVENT per occurrence and a
// display VALARM for those with an alarm. summary names an item by its
// container and item ID.
func Export(w io.Writer, list []model.Occurrence, summary func(containerID, itemID string) string, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//agenda//occurrences//EN")

	for _, o := range list {
		ev := cal.AddEvent(fmt.Sprintf("%s-%s-%d@agenda", o.ContainerID, o.ItemID, o.Start.Unix()))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(o.Start.UTC())
		if end, ok := o.End.Get(); ok {
			ev.SetEndAt(end.UTC())
		}
		if summary != nil {
			ev.SetSummary(summary(o.ContainerID, o.ItemID))
		}
		if at, ok := o.Alarm.Get(); ok {
			a := ev.AddAlarm()
			a.SetAction(ical.ActionDisplay)
			a.SetTrigger(formatDuration(at.Sub(o.Start)))
		}
	}
	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// formatDuration writes d as an RFC 5545 dur-value with second precision.
func formatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	secs := int64(d / time.Second)
	if secs == 0 {
		return "PT0S"
	}
	out := sign + "P"
	if days := secs / 86400; days > 0 {
		out += fmt.Sprintf("%dD", days)
		secs %= 86400
	}
	if secs > 0 {
		out += "T"
		if h := secs / 3600; h > 0 {
			out += fmt.Sprintf("%dH", h)
		}
		if m := secs % 3600 / 60; m > 0 {
			out += fmt.Sprintf("%dM", m)
		}
		if s := secs % 60; s > 0 {
			out += fmt.Sprintf("%dS", s)
		}
	}
	return out
}
