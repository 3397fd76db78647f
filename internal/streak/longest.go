package streak

import "cloud.google.com/go/civil"

// Length is the day count used for longest marking: (end or asOf) - start + 1,
// never less than 1.
func Length(s Span, asOf civil.Date) int {
	end := asOf
	if s.End != nil {
		end = *s.End
	}
	n := end.DaysSince(s.Start) + 1
	if n < 1 {
		return 1
	}
	return n
}

// CurrentDays is the day count reported for an open streak. A start in the
// future relative to asOf counts as 0 rather than going negative.
func CurrentDays(s Span, asOf civil.Date) int {
	end := asOf
	if s.End != nil {
		end = *s.End
	}
	n := end.DaysSince(s.Start) + 1
	if n <= 0 {
		return 0
	}
	return n
}

// Longest returns the index of the longest span, ties going to the earliest
// start, or -1 for no spans.
func Longest(spans []Span, asOf civil.Date) int {
	best := -1
	bestLen := 0
	for i, s := range spans {
		n := Length(s, asOf)
		switch {
		case best == -1, n > bestLen:
			best, bestLen = i, n
		case n == bestLen && s.Start.Before(spans[best].Start):
			best = i
		}
	}
	return best
}

// MarkLongest sets IsLongest on exactly one interval and clears the rest. It
// returns the slice indexes whose flag changed.
func MarkLongest(intervals []Interval, asOf civil.Date) []int {
	spans := make([]Span, len(intervals))
	for i := range intervals {
		spans[i] = intervals[i].Span()
	}
	winner := Longest(spans, asOf)

	var changed []int
	for i := range intervals {
		want := i == winner
		if intervals[i].IsLongest != want {
			intervals[i].IsLongest = want
			changed = append(changed, i)
		}
	}
	return changed
}

// OpenInterval returns the open interval with the latest start, if any.
func OpenInterval(intervals []Interval) (Interval, bool) {
	var found Interval
	ok := false
	for _, iv := range intervals {
		if iv.EndDate != nil {
			continue
		}
		if !ok || iv.StartDate.After(found.StartDate) {
			found, ok = iv, true
		}
	}
	return found, ok
}

// LastClosed returns the closed interval with the latest end, if any.
func LastClosed(intervals []Interval) (int, bool) {
	idx := -1
	for i, iv := range intervals {
		if iv.EndDate == nil {
			continue
		}
		if idx == -1 || iv.EndDate.After(*intervals[idx].EndDate) {
			idx = i
		}
	}
	return idx, idx != -1
}
