package streak

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStreakAPI/internal/calendar"
)

var testNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func closed(start, end string) Span {
	e := calendar.MustParse(end)
	return Span{Start: calendar.MustParse(start), End: &e}
}

func open(start string) Span {
	return Span{Start: calendar.MustParse(start)}
}

func TestLength(t *testing.T) {
	asOf := calendar.MustParse("2025-01-10")
	assert.Equal(t, 3, Length(closed("2025-01-01", "2025-01-03"), asOf))
	assert.Equal(t, 1, Length(closed("2025-01-01", "2025-01-01"), asOf))
	assert.Equal(t, 5, Length(open("2025-01-06"), asOf))
	assert.Equal(t, 1, Length(open("2025-01-20"), asOf), "future start counts as one day")
}

func TestCurrentDays(t *testing.T) {
	asOf := calendar.MustParse("2025-01-03")
	assert.Equal(t, 3, CurrentDays(open("2025-01-01"), asOf))
	assert.Equal(t, 1, CurrentDays(open("2025-01-03"), asOf))
	assert.Equal(t, 0, CurrentDays(open("2025-01-05"), asOf))
}

func TestLongestTieGoesToEarliestStart(t *testing.T) {
	asOf := calendar.MustParse("2025-02-01")
	spans := []Span{
		closed("2025-01-10", "2025-01-12"),
		closed("2025-01-01", "2025-01-03"),
		open("2025-01-31"),
	}
	assert.Equal(t, 1, Longest(spans, asOf))
	assert.Equal(t, -1, Longest(nil, asOf))
}

func TestLongestCountsOpenToAsOf(t *testing.T) {
	spans := []Span{closed("2025-01-01", "2025-01-03"), open("2025-01-05")}
	assert.Equal(t, 0, Longest(spans, calendar.MustParse("2025-01-06")))
	assert.Equal(t, 1, Longest(spans, calendar.MustParse("2025-01-08")))
}

func TestMarkLongest(t *testing.T) {
	key := HabitKey{OwnerID: "user_1", HabitID: "h1"}
	ivs := NewIntervals(key, []Span{
		closed("2025-01-01", "2025-01-02"),
		open("2025-01-05"),
	}, testNow)
	ivs[0].IsLongest = true

	changed := MarkLongest(ivs, calendar.MustParse("2025-01-10"))
	assert.ElementsMatch(t, []int{0, 1}, changed)
	assert.False(t, ivs[0].IsLongest)
	assert.True(t, ivs[1].IsLongest)

	assert.Empty(t, MarkLongest(ivs, calendar.MustParse("2025-01-10")))
}

func TestOpenIntervalAndLastClosed(t *testing.T) {
	key := HabitKey{OwnerID: "user_1", HabitID: "h1"}
	ivs := NewIntervals(key, []Span{
		closed("2025-01-01", "2025-01-02"),
		closed("2025-01-05", "2025-01-07"),
		open("2025-01-03"),
		open("2025-01-10"),
	}, testNow)

	iv, ok := OpenInterval(ivs)
	require.True(t, ok)
	assert.Equal(t, "2025-01-10", iv.StartDate.String())

	idx, ok := LastClosed(ivs)
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2025, Month: 1, Day: 7}, *ivs[idx].EndDate)

	_, ok = LastClosed(ivs[2:])
	assert.False(t, ok)
}
