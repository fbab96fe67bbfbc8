package domain

import (
	"sort"
	"time"
)

type Transition string

const (
	TransitionNone    Transition = "none"
	TransitionOpened  Transition = "opened"
	TransitionClosed  Transition = "closed"
	TransitionIgnored Transition = "ignored"
)

// PresenceRecord is the persisted history of one tracked entity.
type PresenceRecord struct {
	EntityID    EntityID
	DisplayName string
	Sessions    []Session
	Open        *Session
	// observed is set once the record has seen a signal in this process, so an
	// offline signal on a fresh record can be told apart from a real close.
	observed bool
}

func NewPresenceRecord(id EntityID, displayName string) *PresenceRecord {
	return &PresenceRecord{EntityID: id, DisplayName: displayName}
}

// State reports the state machine position. A record loaded with an open
// session is online.
func (r *PresenceRecord) State() Status {
	if r.Open != nil {
		return StatusOnline
	}
	if !r.observed {
		return StatusUnknown
	}
	return StatusOffline
}

// Observe advances the state machine with a status seen at now.
func (r *PresenceRecord) Observe(status Status, now time.Time) Transition {
	previous := r.State()
	r.observed = true

	switch status {
	case StatusOnline:
		if previous == StatusOnline {
			return TransitionNone
		}
		r.Open = &Session{Start: now}
		return TransitionOpened
	case StatusOffline:
		if previous == StatusOnline {
			closed := r.Open.Close(now)
			r.Sessions = append(r.Sessions, closed)
			r.Open = nil
			return TransitionClosed
		}
		if previous == StatusUnknown {
			// The interval before this process started was never observed.
			return TransitionIgnored
		}
		return TransitionNone
	default:
		return TransitionNone
	}
}

// Clone returns a deep copy safe to hand out of the store.
func (r PresenceRecord) Clone() PresenceRecord {
	out := r
	if r.Sessions != nil {
		out.Sessions = make([]Session, len(r.Sessions))
		copy(out.Sessions, r.Sessions)
	}
	if r.Open != nil {
		open := *r.Open
		out.Open = &open
	}
	return out
}

// SessionsSince returns the closed sessions that ended after since, so a
// session spanning since belongs to the window it closed in. A zero since
// returns every session.
func (r PresenceRecord) SessionsSince(since time.Time) []Session {
	if since.IsZero() {
		return r.Sessions
	}
	var out []Session
	for _, session := range r.Sessions {
		if session.End.After(since) {
			out = append(out, session)
		}
	}
	return out
}

// Normalize restores the start ordering and drops sessions that violate the
// closed-session invariants, returning how many were dropped.
func (r *PresenceRecord) Normalize() int {
	kept := r.Sessions[:0]
	dropped := 0
	for _, session := range r.Sessions {
		if session.IsOpen() || session.End.Before(session.Start) {
			dropped++
			continue
		}
		kept = append(kept, session)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start.Before(kept[j].Start)
	})
	r.Sessions = kept
	return dropped
}

func TotalMinutes(sessions []Session) float64 {
	total := 0.0
	for _, session := range sessions {
		total += session.DurationMinutes
	}
	return total
}
