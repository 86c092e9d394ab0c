package occur

import (
	"slices"
	"time"

	"agenda/internal/model"
)

// Span is a half-open time interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// Allocation is the time allocation of a window derived from an occurrence
// sequence: the spans no occurrence occupies and the spans two or more
// occurrences occupy at once. Open-ended occurrences occupy no time.
type Allocation struct {
	Gaps     []Span
	Overlaps []Span
}

// Allocate computes the Allocation of [min, max) for list.
func Allocate(list []model.Occurrence, min, max time.Time) Allocation {
	type edge struct {
		at    time.Time
		delta int
	}
	var edges []edge
	for _, o := range list {
		end, ok := o.End.Get()
		if !ok {
			continue
		}
		start := o.Start
		if start.Before(min) {
			start = min
		}
		if end.After(max) {
			end = max
		}
		if !start.Before(end) {
			continue
		}
		edges = append(edges, edge{start, +1}, edge{end, -1})
	}
	// Ends sort before starts at the same instant so that back-to-back
	// occurrences neither overlap nor leave a gap.
	slices.SortFunc(edges, func(a, b edge) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return a.delta - b.delta
	})

	var out Allocation
	depth := 0
	cursor := min
	for _, e := range edges {
		if e.at.After(cursor) {
			switch {
			case depth == 0:
				out.Gaps = append(out.Gaps, Span{cursor, e.at})
			case depth > 1:
				out.Overlaps = appendSpan(out.Overlaps, Span{cursor, e.at})
			}
			cursor = e.at
		}
		depth += e.delta
	}
	if cursor.Before(max) {
		out.Gaps = append(out.Gaps, Span{cursor, max})
	}
	return out
}

// appendSpan merges s into the last span when they touch.
func appendSpan(spans []Span, s Span) []Span {
	if n := len(spans); n > 0 && spans[n-1].End.Equal(s.Start) {
		spans[n-1].End = s.End
		return spans
	}
	return append(spans, s)
}
