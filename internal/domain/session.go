package domain

import "time"

// Session is one continuous online interval. A zero End means the session is
// still open.
type Session struct {
	Start           time.Time
	End             time.Time
	DurationMinutes float64
}

func (s Session) IsOpen() bool {
	return s.End.IsZero()
}

// Close ends the session at end. An end before start is clamped to start so a
// closed session never has a negative duration.
func (s Session) Close(end time.Time) Session {
	if end.Before(s.Start) {
		end = s.Start
	}
	s.End = end
	s.DurationMinutes = end.Sub(s.Start).Minutes()
	return s
}

func (s Session) Duration() time.Duration {
	if s.IsOpen() {
		return 0
	}
	return s.End.Sub(s.Start)
}
