package application

import (
	"testing"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildReport(t *testing.T) {
	t.Parallel()

	lastReport := baseTime.Add(-24 * time.Hour)
	records := []domain.PresenceRecord{
		{
			EntityID:    "1",
			DisplayName: "alice",
			Sessions: []domain.Session{
				closedSession(baseTime.Add(-48*time.Hour), 10),
				closedSession(baseTime.Add(-2*time.Hour), 20),
				closedSession(baseTime.Add(-time.Hour), 15),
			},
			Open: &domain.Session{Start: baseTime},
		},
		{EntityID: "2", Sessions: []domain.Session{closedSession(baseTime.Add(-3*time.Hour), 5)}},
		{EntityID: "3", DisplayName: "unsubscribed", Sessions: []domain.Session{closedSession(baseTime, 5)}},
	}
	subscribed := []domain.EntityID{"1", "2", "4"}

	tests := []struct {
		name string
		mode domain.ReportMode
		want []ReportLine
	}{
		{
			name: "since last report",
			mode: domain.ReportModeSinceLast,
			want: []ReportLine{
				{EntityID: "1", DisplayName: "alice", Sessions: 2, OnlineMinutes: 35, Online: true},
				{EntityID: "2", DisplayName: "2", Sessions: 1, OnlineMinutes: 5},
			},
		},
		{
			name: "all time",
			mode: domain.ReportModeAllTime,
			want: []ReportLine{
				{EntityID: "1", DisplayName: "alice", Sessions: 3, OnlineMinutes: 45, Online: true},
				{EntityID: "2", DisplayName: "2", Sessions: 1, OnlineMinutes: 5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report := BuildReport(subscribed, records, tt.mode, lastReport, baseTime)
			assert.Equal(t, tt.want, report.Lines)
		})
	}
}

func TestBuildReportCountsSessionSpanningDeadline(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	subscribed := []domain.EntityID{"1"}
	open := domain.PresenceRecord{
		EntityID: "1",
		Open:     &domain.Session{Start: deadline.Add(-30 * time.Minute)},
	}

	first := BuildReport(subscribed, []domain.PresenceRecord{open}, domain.ReportModeSinceLast, deadline.Add(-7*24*time.Hour), deadline)
	assert.Equal(t, []ReportLine{{EntityID: "1", DisplayName: "1", Online: true}}, first.Lines)

	closed := domain.PresenceRecord{
		EntityID: "1",
		Sessions: []domain.Session{closedSession(deadline.Add(-30*time.Minute), 60)},
	}
	next := deadline.Add(7 * 24 * time.Hour)
	second := BuildReport(subscribed, []domain.PresenceRecord{closed}, domain.ReportModeSinceLast, deadline, next)
	assert.Equal(t, []ReportLine{{EntityID: "1", DisplayName: "1", Sessions: 1, OnlineMinutes: 60}}, second.Lines)

	third := BuildReport(subscribed, []domain.PresenceRecord{closed}, domain.ReportModeSinceLast, next, next.Add(7*24*time.Hour))
	assert.Equal(t, []ReportLine{{EntityID: "1", DisplayName: "1"}}, third.Lines)
}

func TestReportText(t *testing.T) {
	t.Parallel()

	report := Report{
		GeneratedAt: baseTime,
		Since:       time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
		Lines: []ReportLine{
			{EntityID: "1", DisplayName: "alice", Sessions: 2, OnlineMinutes: 35, Online: true},
			{EntityID: "2", DisplayName: "bob", Sessions: 1, OnlineMinutes: 5.5},
		},
	}

	want := "Weekly Online Report (since 2026-02-23 00:00 UTC):\n" +
		"User alice (ID: 1) has been online 2 times, 35.0 minutes in total (online now).\n" +
		"User bob (ID: 2) has been online 1 time, 5.5 minutes in total.\n"
	assert.Equal(t, want, report.Text())
	assert.Equal(t, "weekly-report-2026-03-02.txt", report.Filename())

	empty := Report{GeneratedAt: baseTime}
	assert.Equal(t, "Weekly Online Report:\nNo tracked users have presence data yet.\n", empty.Text())
}
