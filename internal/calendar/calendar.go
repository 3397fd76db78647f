package calendar

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

const Layout = "2006-01-02"

// Clock turns wall-clock time into the calendar day used as asOf.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{Now: time.Now, Location: loc}
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) *Clock {
	return &Clock{Now: func() time.Time { return t }, Location: time.UTC}
}

func (c *Clock) Today() civil.Date {
	return civil.DateOf(c.Now().In(c.Location))
}

func (c *Clock) Timestamp() time.Time {
	return c.Now().UTC()
}

// Parse accepts strict YYYY-MM-DD input.
func Parse(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	if !d.IsValid() {
		return civil.Date{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

func MustParse(s string) civil.Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime drops the time-of-day of a value read from a DATE column.
func FromTime(t time.Time) civil.Date {
	return civil.DateOf(t)
}

func MonthBounds(d civil.Date) (civil.Date, civil.Date) {
	first := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	next := civil.DateOf(first.In(time.UTC).AddDate(0, 1, 0))
	return first, next.AddDays(-1)
}

func Max(a, b civil.Date) civil.Date {
	if a.After(b) {
		return a
	}
	return b
}

// SortUnique sorts ascending and drops duplicates in place.
func SortUnique(dates []civil.Date) []civil.Date {
	if len(dates) < 2 {
		return dates
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:1]
	for _, d := range dates[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	return out
}
