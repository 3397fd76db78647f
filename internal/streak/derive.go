package streak

import (
	"fmt"

	"cloud.google.com/go/civil"

	"habitStreakAPI/internal/calendar"
)

// Mode selects how tolerant derivation is about gaps and about keeping the
// final run open.
//
//	Strict        consecutive days only; final run open if last date >= asOf-1
//	Conservative  consecutive days only; final run open if last date >= asOf-2
//	UndoBiased    gaps up to the undo tolerance are continuous; final run always open
//
// OnLogAdded and the Consistency Validator derive with Strict (Conservative
// when configured for the log path). OnLogRemoved derives with UndoBiased.
type Mode int

const (
	Strict Mode = iota
	Conservative
	UndoBiased
)

const DefaultUndoGapTolerance = 4

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Conservative:
		return "conservative"
	case UndoBiased:
		return "undo"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "strict", "":
		return Strict, nil
	case "conservative":
		return Conservative, nil
	case "undo":
		return UndoBiased, nil
	}
	return Strict, fmt.Errorf("unknown streak mode %q", s)
}

// Options parameterize Derive. AsOf is the only notion of "today" the
// deriver ever sees.
type Options struct {
	Mode             Mode
	AsOf             civil.Date
	UndoGapTolerance int
	// Frozen days are exempt: they are not counted as missed when measuring
	// a gap or the distance from the last completion to AsOf.
	Frozen []civil.Date
}

// Span is one derived run. A nil End means the run is still open.
type Span struct {
	Start civil.Date
	End   *civil.Date
}

func (s Span) Open() bool { return s.End == nil }

type rule struct {
	maxGap       int
	recentWindow int
	alwaysOpen   bool
}

func (o Options) rule() rule {
	switch o.Mode {
	case Conservative:
		return rule{maxGap: 1, recentWindow: 2}
	case UndoBiased:
		tol := o.UndoGapTolerance
		if tol <= 0 {
			tol = DefaultUndoGapTolerance
		}
		return rule{maxGap: tol, alwaysOpen: true}
	default:
		return rule{maxGap: 1, recentWindow: 1}
	}
}

// Derive computes the streak intervals for one habit from its completion
// dates. The input is copied, sorted and de-duplicated; an empty input yields
// no spans. A single completion always produces one open span.
func Derive(dates []civil.Date, opts Options) []Span {
	if len(dates) == 0 {
		return nil
	}
	days := calendar.SortUnique(append([]civil.Date(nil), dates...))
	if len(days) == 1 {
		return []Span{{Start: days[0]}}
	}

	r := opts.rule()
	frozen := newExemptions(opts.Frozen)

	var spans []Span
	start := days[0]
	for i := 1; i < len(days); i++ {
		prev, curr := days[i-1], days[i]
		gap := curr.DaysSince(prev) - frozen.between(prev, curr)
		if gap <= r.maxGap {
			continue
		}
		end := prev
		spans = append(spans, Span{Start: start, End: &end})
		start = curr
	}

	last := days[len(days)-1]
	since := opts.AsOf.DaysSince(last) - frozen.between(last, opts.AsOf)
	if r.alwaysOpen || since <= r.recentWindow {
		spans = append(spans, Span{Start: start})
	} else {
		spans = append(spans, Span{Start: start, End: &last})
	}
	return spans
}

type exemptions map[civil.Date]struct{}

func newExemptions(dates []civil.Date) exemptions {
	if len(dates) == 0 {
		return nil
	}
	e := make(exemptions, len(dates))
	for _, d := range dates {
		e[d] = struct{}{}
	}
	return e
}

// between counts exempt days strictly after a and strictly before b.
func (e exemptions) between(a, b civil.Date) int {
	n := 0
	for d := range e {
		if d.After(a) && d.Before(b) {
			n++
		}
	}
	return n
}
