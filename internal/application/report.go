package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
)

type ReportLine struct {
	EntityID      domain.EntityID
	DisplayName   string
	Sessions      int
	OnlineMinutes float64
	Online        bool
}

// Report is the periodic summary of subscribed entities.
type Report struct {
	GeneratedAt time.Time
	Since       time.Time
	Mode        domain.ReportMode
	Lines       []ReportLine
}

// BuildReport summarises every subscribed entity that has a record. In
// since_last mode only sessions closed after since are counted.
func BuildReport(subscribed []domain.EntityID, records []domain.PresenceRecord, mode domain.ReportMode, since, now time.Time) Report {
	byID := make(map[domain.EntityID]domain.PresenceRecord, len(records))
	for _, record := range records {
		byID[record.EntityID] = record
	}

	report := Report{GeneratedAt: now, Mode: mode}
	if mode == domain.ReportModeSinceLast {
		report.Since = since
	}

	for _, id := range subscribed {
		record, ok := byID[id]
		if !ok {
			continue
		}
		sessions := record.Sessions
		if !report.Since.IsZero() {
			sessions = record.SessionsSince(report.Since)
		}
		report.Lines = append(report.Lines, ReportLine{
			EntityID:      id,
			DisplayName:   displayName(record),
			Sessions:      len(sessions),
			OnlineMinutes: domain.TotalMinutes(sessions),
			Online:        record.Open != nil,
		})
	}
	return report
}

func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("Weekly Online Report")
	if !r.Since.IsZero() {
		fmt.Fprintf(&b, " (since %s)", r.Since.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString(":\n")

	if len(r.Lines) == 0 {
		b.WriteString("No tracked users have presence data yet.\n")
		return b.String()
	}

	for _, line := range r.Lines {
		fmt.Fprintf(&b, "User %s (ID: %s) has been online %d %s, %.1f minutes in total",
			line.DisplayName, line.EntityID, line.Sessions, plural(line.Sessions, "time", "times"), line.OnlineMinutes)
		if line.Online {
			b.WriteString(" (online now)")
		}
		b.WriteString(".\n")
	}
	return b.String()
}

// Filename is the attachment name used when a destination stores files.
func (r Report) Filename() string {
	return fmt.Sprintf("weekly-report-%s.txt", r.GeneratedAt.UTC().Format("2006-01-02"))
}

func displayName(record domain.PresenceRecord) string {
	if record.DisplayName != "" {
		return record.DisplayName
	}
	return string(record.EntityID)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
