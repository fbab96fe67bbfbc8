package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyticsFixture() PresenceRecord {
	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	return PresenceRecord{
		EntityID: "42",
		Sessions: []Session{
			{Start: monday, End: monday.Add(45 * time.Minute), DurationMinutes: 45},
			{Start: monday.Add(24 * time.Hour), End: monday.Add(25 * time.Hour), DurationMinutes: 60},
			{Start: monday.Add(6*24*time.Hour - 20*time.Hour), End: monday.Add(6*24*time.Hour - 19*time.Hour), DurationMinutes: 60},
			{Start: monday.Add(7 * 24 * time.Hour), End: monday.Add(7*24*time.Hour + time.Minute), DurationMinutes: 1},
		},
	}
}

func TestSessionsByWeekdayBucketsMondayFirst(t *testing.T) {
	t.Parallel()

	counts := SessionsByWeekday(analyticsFixture(), time.UTC)
	assert.Equal(t, [7]int{2, 1, 0, 0, 0, 0, 1}, counts)
}

func TestSessionsByHourUsesLocation(t *testing.T) {
	t.Parallel()

	record := analyticsFixture()
	utc := SessionsByHour(record, time.UTC)
	assert.Equal(t, 3, utc[23])
	assert.Equal(t, 1, utc[3])

	plusOne := SessionsByHour(record, time.FixedZone("UTC+1", 3600))
	assert.Equal(t, 3, plusOne[0])
	assert.Equal(t, 1, plusOne[4])

	// A session late on Monday UTC falls on Tuesday one hour east.
	weekdays := SessionsByWeekday(record, time.FixedZone("UTC+1", 3600))
	assert.Equal(t, [7]int{0, 2, 1, 0, 0, 0, 1}, weekdays)
}

func TestBucketCountsSumToSessionCount(t *testing.T) {
	t.Parallel()

	record := analyticsFixture()
	for _, loc := range []*time.Location{time.UTC, time.FixedZone("x", -5*3600), nil} {
		weekdays := SessionsByWeekday(record, loc)
		hours := SessionsByHour(record, loc)

		sumWeekdays, sumHours := 0, 0
		for _, n := range weekdays {
			sumWeekdays += n
		}
		for _, n := range hours {
			sumHours += n
		}
		assert.Equal(t, len(record.Sessions), sumWeekdays)
		assert.Equal(t, len(record.Sessions), sumHours)
	}
}

func TestDurationSeriesKeepsOrder(t *testing.T) {
	t.Parallel()

	record := analyticsFixture()
	series := DurationSeries(record)
	require.Len(t, series, len(record.Sessions))
	for i, point := range series {
		assert.Equal(t, record.Sessions[i].Start, point.At)
		assert.InDelta(t, record.Sessions[i].DurationMinutes, point.DurationMinutes, 1e-9)
	}

	assert.Empty(t, DurationSeries(PresenceRecord{}))
}
