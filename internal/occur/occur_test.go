package occur

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func occ(item string, start time.Time, end, alarm *time.Time) model.Occurrence {
	o := model.Occurrence{ContainerID: "doc", ItemID: item, Start: start}
	if end != nil {
		o.End = mo.Some(*end)
	}
	if alarm != nil {
		o.Alarm = mo.Some(*alarm)
	}
	return o
}

func ptr(t time.Time) *time.Time { return &t }

func TestRange(t *testing.T) {
	r := NewRange(at(9, 0), at(12, 0))

	tests := []struct {
		name string
		o    model.Occurrence
		want bool
	}{
		{"starts at min", occ("a", at(9, 0), nil, nil), true},
		{"starts at max", occ("b", at(12, 0), nil, nil), true},
		{"after max", occ("c", at(12, 1), nil, nil), false},
		{"running at min", occ("d", at(8, 0), ptr(at(9, 30)), nil), true},
		{"ends exactly at min", occ("e", at(8, 0), ptr(at(9, 0)), nil), false},
		{"late alarm inside", occ("f", at(7, 0), ptr(at(7, 30)), ptr(at(10, 0))), true},
		{"early alarm before window", occ("g", at(13, 0), nil, ptr(at(8, 0))), false},
		{"early alarm inside", occ("h", at(13, 0), nil, ptr(at(11, 0))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Add(tt.o))
		})
	}

	assert.False(t, r.Add(occ("a", at(9, 0), nil, nil)), "duplicates are dropped")
	assert.Equal(t, 5, r.Len())

	var items []string
	for _, o := range r.Occurrences() {
		items = append(items, o.ItemID)
	}
	assert.Equal(t, []string{"f", "d", "a", "b", "h"}, items)
}

func TestRange_KeyIgnoresLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	r := NewRange(at(0, 0), at(23, 0))
	assert.True(t, r.Add(occ("a", at(9, 0), nil, nil)))
	assert.False(t, r.Add(occ("a", at(9, 0).In(ny), nil, nil)))
}

func TestNext(t *testing.T) {
	n := NewNext(at(9, 0))
	_, ok := n.Time()
	assert.False(t, ok)

	assert.False(t, n.Add(occ("base", at(9, 0), nil, nil)), "due at base is not after it")
	assert.True(t, n.Add(occ("late", at(11, 0), nil, nil)))
	assert.True(t, n.Add(occ("earlier", at(12, 0), nil, ptr(at(10, 0)))))
	assert.False(t, n.Add(occ("later", at(10, 30), nil, nil)))
	assert.True(t, n.Add(occ("tie", at(10, 0), nil, nil)))

	next, ok := n.Time()
	require.True(t, ok)
	assert.Equal(t, at(10, 0), next)

	var items []string
	for _, o := range n.Occurrences() {
		items = append(items, o.ItemID)
	}
	assert.Equal(t, []string{"tie", "earlier"}, items)

	assert.True(t, n.Beyond(occ("x", at(10, 1), nil, nil)))
	assert.False(t, n.Beyond(occ("x", at(10, 0), nil, nil)))
	assert.False(t, n.Beyond(occ("x", at(11, 0), nil, ptr(at(9, 30)))))
	assert.False(t, NewNext(at(0, 0)).Beyond(occ("x", at(23, 0), nil, nil)))
}

func TestAllocate(t *testing.T) {
	list := []model.Occurrence{
		occ("a", at(9, 0), ptr(at(10, 0)), nil),
		occ("b", at(9, 30), ptr(at(11, 0)), nil),
		occ("c", at(10, 0), ptr(at(11, 0)), nil),
		occ("open", at(11, 30), nil, nil),
		occ("d", at(13, 0), ptr(at(15, 0)), nil),
	}
	got := Allocate(list, at(8, 0), at(14, 0))

	assert.Equal(t, []Span{
		{at(8, 0), at(9, 0)},
		{at(11, 0), at(13, 0)},
	}, got.Gaps)
	assert.Equal(t, []Span{
		{at(9, 30), at(11, 0)},
	}, got.Overlaps)

	empty := Allocate(nil, at(8, 0), at(9, 0))
	assert.Equal(t, []Span{{at(8, 0), at(9, 0)}}, empty.Gaps)
	assert.Empty(t, empty.Overlaps)
}
