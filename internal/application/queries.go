package application

import (
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
)

type EntityStatus struct {
	EntityID     domain.EntityID
	DisplayName  string
	Subscribed   bool
	HasRecord    bool
	Online       bool
	OnlineSince  time.Time
	Sessions     int
	TotalMinutes float64
}

type Status struct {
	GeneratedAt time.Time
	Entities    []EntityStatus
	Report      domain.ReportSchedule
	NextReport  time.Time
}

// Status lists every subscribed entity plus any entity that still has history
// after being unsubscribed.
func (e *Engine) Status() Status {
	subscribed := e.Registry.List()
	records := e.Sessions.All()

	byID := make(map[domain.EntityID]domain.PresenceRecord, len(records))
	for _, record := range records {
		byID[record.EntityID] = record
	}

	status := Status{
		GeneratedAt: e.clock.Now("status"),
		Report:      e.Scheduler.State(),
	}
	if deadline, ok := e.Scheduler.NextDeadline(); ok {
		status.NextReport = deadline
	}

	seen := make(map[domain.EntityID]struct{}, len(subscribed))
	for _, id := range subscribed {
		seen[id] = struct{}{}
		entry := EntityStatus{EntityID: id, DisplayName: string(id), Subscribed: true}
		if record, ok := byID[id]; ok {
			fillEntityStatus(&entry, record)
		}
		status.Entities = append(status.Entities, entry)
	}
	for _, record := range records {
		if _, ok := seen[record.EntityID]; ok {
			continue
		}
		entry := EntityStatus{EntityID: record.EntityID}
		fillEntityStatus(&entry, record)
		status.Entities = append(status.Entities, entry)
	}
	return status
}

func fillEntityStatus(entry *EntityStatus, record domain.PresenceRecord) {
	entry.HasRecord = true
	entry.DisplayName = displayName(record)
	entry.Sessions = len(record.Sessions)
	entry.TotalMinutes = domain.TotalMinutes(record.Sessions)
	if record.Open != nil {
		entry.Online = true
		entry.OnlineSince = record.Open.Start
	}
}
