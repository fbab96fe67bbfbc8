package domain

import "strings"

type EntityID string

func (id EntityID) Normalize() EntityID {
	return EntityID(strings.TrimSpace(string(id)))
}

type Status string

const (
	StatusUnknown Status = ""
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
)

// ParseStatus maps a platform status onto the two tracked states. Only an
// explicit "online" counts as online; idle, dnd and invisible are offline.
func ParseStatus(raw string) Status {
	if strings.EqualFold(strings.TrimSpace(raw), string(StatusOnline)) {
		return StatusOnline
	}
	return StatusOffline
}

// Observation is one entity's status as seen in a single snapshot.
type Observation struct {
	EntityID    EntityID
	DisplayName string
	Status      Status
}

type Snapshot []Observation

// Index returns the snapshot keyed by entity. Later duplicates win.
func (s Snapshot) Index() map[EntityID]Observation {
	out := make(map[EntityID]Observation, len(s))
	for _, obs := range s {
		id := obs.EntityID.Normalize()
		if id == "" {
			continue
		}
		obs.EntityID = id
		out[id] = obs
	}
	return out
}
