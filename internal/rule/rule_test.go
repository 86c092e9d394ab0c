package rule

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = Date{Year: 2024, Month: time.January, Day: 1}

func TestValidation(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		build func() (Rule, error)
		field string
	}{
		{"empty months", func() (Rule, error) { return NewMonthlyDirect(nil, 1, 0, 0) }, "months"},
		{"month 13", func() (Rule, error) { return NewMonthlyDirect([]time.Month{13}, 1, 0, 0) }, "months"},
		{"day 32", func() (Rule, error) { return NewMonthlyDirect([]time.Month{1}, 32, 0, 0) }, "day"},
		{"day 0 from end", func() (Rule, error) { return NewMonthlyInverse([]time.Month{1}, 0, 0, 0) }, "day"},
		{"hour 24", func() (Rule, error) { return NewEveryNDays(jan1, 1, 24, 0) }, "hour"},
		{"minute 60", func() (Rule, error) { return NewEveryNDays(jan1, 1, 0, 60) }, "minute"},
		{"every 0", func() (Rule, error) { return NewEveryNMonths(jan1, 0, 1, 0, 0) }, "every"},
		{"bad anchor", func() (Rule, error) { return NewEveryNDays(Date{2023, 2, 29}, 1, 0, 0) }, "anchor"},
		{"no weekdays", func() (Rule, error) { return NewEveryNWeeks(jan1, 1, nil, 0, 0) }, "weekdays"},
		{"ordinal 6", func() (Rule, error) { return NewMonthlyWeekday([]time.Month{1}, time.Monday, 6, 0, 0) }, "ordinal"},
		{"ordinal 0", func() (Rule, error) { return NewMonthlyWeekday([]time.Month{1}, time.Monday, 0, 0, 0) }, "ordinal"},
		{"zero interval", func() (Rule, error) { return NewEveryInterval(start, 0) }, "interval"},
		{"sub-second interval", func() (Rule, error) { return NewEveryInterval(start, 1500*time.Millisecond) }, "interval"},
		{"zero end", func() (Rule, error) { return NewOnce(start, WithEnd(0)) }, "end"},
		{"negative end", func() (Rule, error) { return NewOnce(start, WithEnd(-time.Hour)) }, "end"},
		{"fractional alarm", func() (Rule, error) { return NewOnce(start, WithAlarm(time.Millisecond)) }, "alarm"},
		{"exception ends before start", func() (Rule, error) { return NewExceptOnce(start, start.Add(-time.Hour), true) }, "end"},
		{"exception with alarm", func() (Rule, error) { return NewExceptOnce(start, start, true, WithAlarm(time.Hour)) }, "options"},
		{"unknown standard", func() (Rule, error) { return NewOnce(start, WithStandard(Standard(7))) }, "standard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestWeekdaysAndMonthsNormalized(t *testing.T) {
	r, err := NewEveryNWeeks(jan1, 1, []time.Weekday{time.Friday, time.Monday, time.Friday}, 9, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, r.Weekdays())

	r, err = NewMonthlyDirect([]time.Month{12, 1, 12, 6}, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Month{1, 6, 12}, r.Months())
}

func TestLookback(t *testing.T) {
	all := []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	mustRule := func(r Rule, err error) Rule {
		t.Helper()
		require.NoError(t, err)
		return r
	}
	tests := []struct {
		name string
		rule Rule
		want time.Duration
	}{
		{"no span", mustRule(NewEveryNDays(jan1, 1, 9, 0)), 0},
		{"end", mustRule(NewEveryNDays(jan1, 1, 9, 0, WithEnd(3*time.Hour))), 3 * time.Hour},
		{"late alarm", mustRule(NewOnce(time.Now(), WithAlarm(-2*time.Hour))), 2 * time.Hour},
		{"early alarm", mustRule(NewOnce(time.Now(), WithAlarm(2*time.Hour))), 0},
		// Day 28 at 20:00 can sit at the very end of February.
		{"monthly spill-over", mustRule(NewMonthlyDirect(all, 28, 20, 0, WithEnd(5*day))), 5 * day},
		{"monthly fits in month", mustRule(NewMonthlyDirect(all, 1, 0, 0, WithEnd(5*day))), 0},
		{"inverse last day", mustRule(NewMonthlyInverse(all, 1, 12, 0, WithEnd(day))), day},
		{"first weekday", mustRule(NewMonthlyWeekday(all, time.Monday, 1, 0, 0, WithEnd(22*day))), day},
		// The last Monday can be the last day of the month.
		{"last weekday", mustRule(NewMonthlyWeekday(all, time.Monday, -1, 0, 0, WithEnd(7*day))), 7 * day},
		{"second to last weekday", mustRule(NewMonthlyWeekday(all, time.Monday, -2, 12, 0, WithEnd(7*day))), 12 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Lookback())
		})
	}
}

func TestCodec(t *testing.T) {
	r, err := NewMonthlyWeekday([]time.Month{3, 9}, time.Saturday, -2, 7, 45,
		WithEnd(90*time.Minute), WithAlarm(-10*time.Minute), WithStandard(UTC),
		WithGUIConfig(json.RawMessage(`{"color":"red"}`)))
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"rule": "occur_monthly_weekday",
		"standard": "UTC",
		"end": 5400,
		"alarm": -600,
		"guiconfig": {"color":"red"},
		"months": [3, 9],
		"weekday": 6,
		"ordinal": -2,
		"hour": 7,
		"minute": 45
	}`, string(data))

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Kind(), back.Kind())
	assert.Equal(t, r.Months(), back.Months())
	assert.Equal(t, r.Ordinal(), back.Ordinal())
	assert.Equal(t, r.Alarm(), back.Alarm())
	assert.Equal(t, r.Lookback(), back.Lookback())
	assert.JSONEq(t, `{"color":"red"}`, string(back.GUIConfig()))

	t.Run("tampered blob fails validation", func(t *testing.T) {
		var bad Rule
		err := json.Unmarshal([]byte(`{"rule":"occur_monthly_number_direct","standard":"local","months":[1],"day":40}`), &bad)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("unknown family", func(t *testing.T) {
		var bad Rule
		err := json.Unmarshal([]byte(`{"rule":"occur_sometimes","standard":"local"}`), &bad)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestCodec_EveryFamily(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	months := []time.Month{2, 11}
	samples := map[Kind]func() (Rule, error){
		KindOnce:          func() (Rule, error) { return NewOnce(start, WithEnd(time.Hour)) },
		KindEveryInterval: func() (Rule, error) { return NewEveryInterval(start, 90*time.Minute, WithStandard(UTC)) },
		KindEveryNDays:    func() (Rule, error) { return NewEveryNDays(jan1, 3, 8, 15, WithAlarm(5*time.Minute)) },
		KindEveryNWeeks: func() (Rule, error) {
			return NewEveryNWeeks(jan1, 2, []time.Weekday{time.Tuesday, time.Thursday}, 18, 0)
		},
		KindEveryNMonths:   func() (Rule, error) { return NewEveryNMonths(jan1, 2, 31, 7, 0, WithEnd(2*day)) },
		KindEveryNYears:    func() (Rule, error) { return NewEveryNYears(jan1, 1, time.February, 29, 0, 0) },
		KindMonthlyDirect:  func() (Rule, error) { return NewMonthlyDirect(months, 15, 12, 0, WithAlarm(-time.Hour)) },
		KindMonthlyInverse: func() (Rule, error) { return NewMonthlyInverse(months, 2, 23, 59, WithEnd(3*day)) },
		KindMonthlyWeekday: func() (Rule, error) { return NewMonthlyWeekday(months, time.Friday, -1, 20, 0, WithEnd(4*day)) },
		KindExceptOnce:     func() (Rule, error) { return NewExceptOnce(start, start.Add(day), false) },
	}
	require.Len(t, samples, len(Kinds))

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			build, ok := samples[kind]
			require.True(t, ok, "no sample for %s", kind)
			r, err := build()
			require.NoError(t, err)
			require.Equal(t, kind, r.Kind())

			data, err := json.Marshal(r)
			require.NoError(t, err)
			var back Rule
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, kind, back.Kind())
			assert.Equal(t, r.Lookback(), back.Lookback())

			again, err := json.Marshal(back)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

func TestDate(t *testing.T) {
	assert.True(t, Date{2024, 2, 29}.Valid())
	assert.False(t, Date{2023, 2, 29}.Valid())
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 31, DaysIn(2024, time.December))
	assert.Equal(t, "2024-03-05", Date{2024, 3, 5}.String())
	assert.Equal(t, -1, Date{2024, 3, 5}.Compare(Date{2024, 4, 1}))
	assert.Equal(t, 1, Date{2025, 1, 1}.Compare(Date{2024, 12, 31}))
	assert.Equal(t, 0, jan1.Compare(DateOf(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC))))
}
