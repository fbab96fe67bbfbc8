package domain

import "time"

var WeekdayLabels = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type SeriesPoint struct {
	At              time.Time
	DurationMinutes float64
}

// Series is a labeled numeric series handed to a renderer.
type Series struct {
	Title  string
	XLabel string
	YLabel string
	Labels []string
	Values []float64
}

// isoWeekdayIndex maps time.Weekday onto a Monday-first index.
func isoWeekdayIndex(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// SessionsByWeekday counts closed sessions by the weekday of their start,
// Monday first, in loc.
func SessionsByWeekday(record PresenceRecord, loc *time.Location) [7]int {
	var counts [7]int
	for _, session := range record.Sessions {
		counts[isoWeekdayIndex(inLocation(session.Start, loc).Weekday())]++
	}
	return counts
}

// SessionsByHour counts closed sessions by the hour of day of their start in loc.
func SessionsByHour(record PresenceRecord, loc *time.Location) [24]int {
	var counts [24]int
	for _, session := range record.Sessions {
		counts[inLocation(session.Start, loc).Hour()]++
	}
	return counts
}

func DurationSeries(record PresenceRecord) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(record.Sessions))
	for _, session := range record.Sessions {
		points = append(points, SeriesPoint{At: session.Start, DurationMinutes: session.DurationMinutes})
	}
	return points
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
