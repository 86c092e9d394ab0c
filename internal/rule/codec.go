package rule

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireRule is the persisted form of a Rule. Durations are whole seconds.
type wireRule struct {
	Kind      Kind            `json:"rule"`
	Standard  string          `json:"standard"`
	End       *int64          `json:"end,omitempty"`
	Alarm     *int64          `json:"alarm,omitempty"`
	GUIConfig json.RawMessage `json:"guiconfig,omitempty"`

	Start     *time.Time `json:"start,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Inclusive bool       `json:"inclusive,omitempty"`
	Interval  int64      `json:"interval,omitempty"`

	Anchor *Date `json:"anchor,omitempty"`
	Every  int   `json:"every,omitempty"`

	Months   []time.Month   `json:"months,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Weekday  time.Weekday   `json:"weekday,omitempty"`
	Ordinal  int            `json:"ordinal,omitempty"`
	Month    time.Month     `json:"month,omitempty"`
	Day      int            `json:"day,omitempty"`
	Hour     int            `json:"hour,omitempty"`
	Minute   int            `json:"minute,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	w := wireRule{
		Kind:      r.kind,
		Standard:  r.standard.String(),
		GUIConfig: r.gui,
	}
	if end, ok := r.end.Get(); ok {
		secs := int64(end / time.Second)
		w.End = &secs
	}
	if alarm, ok := r.alarm.Get(); ok {
		secs := int64(alarm / time.Second)
		w.Alarm = &secs
	}

	switch r.kind {
	case KindOnce:
		w.Start = &r.start
	case KindExceptOnce:
		w.Start, w.Until, w.Inclusive = &r.start, &r.until, r.inclusive
	case KindEveryInterval:
		w.Start, w.Interval = &r.start, int64(r.interval/time.Second)
	case KindEveryNDays:
		w.Anchor, w.Every, w.Hour, w.Minute = &r.anchor, r.every, r.hour, r.minute
	case KindEveryNWeeks:
		w.Anchor, w.Every, w.Weekdays, w.Hour, w.Minute = &r.anchor, r.every, r.weekdays, r.hour, r.minute
	case KindEveryNMonths:
		w.Anchor, w.Every, w.Day, w.Hour, w.Minute = &r.anchor, r.every, r.day, r.hour, r.minute
	case KindEveryNYears:
		w.Anchor, w.Every, w.Month, w.Day, w.Hour, w.Minute = &r.anchor, r.every, r.month, r.day, r.hour, r.minute
	case KindMonthlyDirect, KindMonthlyInverse:
		w.Months, w.Day, w.Hour, w.Minute = r.months, r.day, r.hour, r.minute
	case KindMonthlyWeekday:
		w.Months, w.Weekday, w.Ordinal, w.Hour, w.Minute = r.months, r.weekday, r.ordinal, r.hour, r.minute
	default:
		return nil, fmt.Errorf("rule: cannot encode kind %q", r.kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. The decoded parameters go
// through the family constructor, so a tampered blob fails validation
// instead of producing an invalid Rule.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	std, err := ParseStandard(w.Standard)
	if err != nil {
		return invalid(w.Kind, "standard", "%v", err)
	}
	opts := []Option{WithStandard(std)}
	if w.End != nil {
		opts = append(opts, WithEnd(time.Duration(*w.End)*time.Second))
	}
	if w.Alarm != nil {
		opts = append(opts, WithAlarm(time.Duration(*w.Alarm)*time.Second))
	}
	if len(w.GUIConfig) > 0 {
		opts = append(opts, WithGUIConfig(w.GUIConfig))
	}

	var anchor Date
	if w.Anchor != nil {
		anchor = *w.Anchor
	}
	var start, until time.Time
	if w.Start != nil {
		start = *w.Start
	}
	if w.Until != nil {
		until = *w.Until
	}

	var out Rule
	switch w.Kind {
	case KindOnce:
		out, err = NewOnce(start, opts...)
	case KindExceptOnce:
		out, err = NewExceptOnce(start, until, w.Inclusive, opts...)
	case KindEveryInterval:
		out, err = NewEveryInterval(start, time.Duration(w.Interval)*time.Second, opts...)
	case KindEveryNDays:
		out, err = NewEveryNDays(anchor, w.Every, w.Hour, w.Minute, opts...)
	case KindEveryNWeeks:
		out, err = NewEveryNWeeks(anchor, w.Every, w.Weekdays, w.Hour, w.Minute, opts...)
	case KindEveryNMonths:
		out, err = NewEveryNMonths(anchor, w.Every, w.Day, w.Hour, w.Minute, opts...)
	case KindEveryNYears:
		out, err = NewEveryNYears(anchor, w.Every, w.Month, w.Day, w.Hour, w.Minute, opts...)
	case KindMonthlyDirect:
		out, err = NewMonthlyDirect(w.Months, w.Day, w.Hour, w.Minute, opts...)
	case KindMonthlyInverse:
		out, err = NewMonthlyInverse(w.Months, w.Day, w.Hour, w.Minute, opts...)
	case KindMonthlyWeekday:
		out, err = NewMonthlyWeekday(w.Months, w.Weekday, w.Ordinal, w.Hour, w.Minute, opts...)
	default:
		return invalid(w.Kind, "rule", "unknown rule family")
	}
	if err != nil {
		return err
	}
	*r = out
	return nil
}
