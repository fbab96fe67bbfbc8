package domain

import "sort"

// SubscriptionSet is the set of entities opted into tracking.
type SubscriptionSet map[EntityID]struct{}

func NewSubscriptionSet(ids ...EntityID) SubscriptionSet {
	set := make(SubscriptionSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add reports whether id was newly added.
func (s SubscriptionSet) Add(id EntityID) bool {
	id = id.Normalize()
	if id == "" {
		return false
	}
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s SubscriptionSet) Remove(id EntityID) bool {
	id = id.Normalize()
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

func (s SubscriptionSet) Has(id EntityID) bool {
	_, ok := s[id.Normalize()]
	return ok
}

func (s SubscriptionSet) Sorted() []EntityID {
	ids := make([]EntityID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s SubscriptionSet) Clone() SubscriptionSet {
	out := make(SubscriptionSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
