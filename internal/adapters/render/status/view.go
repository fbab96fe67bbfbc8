package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/presence-tracker/internal/application"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 24

type RenderOptions struct {
	Now time.Time
}

func renderView(status application.Status, opts RenderOptions, s styles) string {
	subscribed := 0
	for _, entity := range status.Entities {
		if entity.Subscribed {
			subscribed++
		}
	}

	lines := []string{
		s.title.Render("Presence Tracker"),
		s.header.Render(fmt.Sprintf("entities: %d, subscribed: %d", len(status.Entities), subscribed)),
		s.detail.Render(reportLine(status)),
	}

	if len(status.Entities) == 0 {
		lines = append(lines, s.empty.Render("No entities are being tracked."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	maxMinutes := 0.0
	for _, entity := range status.Entities {
		maxMinutes = math.Max(maxMinutes, entity.TotalMinutes)
	}

	for _, entity := range status.Entities {
		lines = append(lines, s.section.Render(renderEntity(entity, maxMinutes, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func reportLine(status application.Status) string {
	if !status.Report.Enabled {
		return "weekly report: off"
	}
	line := fmt.Sprintf("weekly report: on -> %s", status.Report.Destination)
	if !status.NextReport.IsZero() {
		line += fmt.Sprintf(", next %s", status.NextReport.Format("2006-01-02 15:04 MST"))
	}
	if !status.Report.LastReportAt.IsZero() {
		line += fmt.Sprintf(", last %s", status.Report.LastReportAt.Format("2006-01-02 15:04 MST"))
	}
	return line
}

func renderEntity(entity application.EntityStatus, maxMinutes float64, opts RenderOptions, s styles) string {
	title := s.entity.Render(fmt.Sprintf("%s (%s)", entity.DisplayName, entity.EntityID))
	if !entity.Subscribed {
		title += " " + s.unwatched.Render("[unsubscribed]")
	}

	parts := []string{title, stateLine(entity, opts, s)}
	if !entity.HasRecord {
		parts = append(parts, s.empty.Render("no presence observed yet"))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	share := 0.0
	if maxMinutes > 0 {
		share = entity.TotalMinutes / maxMinutes * 100
	}
	history := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("history:"),
		" ",
		renderProgressBar(share, barWidth, s),
		" ",
		s.detail.Render(fmt.Sprintf("%d %s, %s", entity.Sessions, sessionWord(entity.Sessions), formatMinutes(entity.TotalMinutes))),
	)
	parts = append(parts, history)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateLine(entity application.EntityStatus, opts RenderOptions, s styles) string {
	if !entity.Online {
		return s.offline.Render("offline")
	}
	if opts.Now.IsZero() || entity.OnlineSince.IsZero() {
		return s.online.Render("online")
	}
	return s.online.Render(fmt.Sprintf("online for %s (since %s)",
		formatMinutes(opts.Now.Sub(entity.OnlineSince).Minutes()),
		entity.OnlineSince.In(opts.Now.Location()).Format("15:04"),
	))
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatMinutes(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	total := int(math.Round(minutes))
	if total < 60 {
		return fmt.Sprintf("%dm", total)
	}
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}

func sessionWord(n int) string {
	if n == 1 {
		return "session"
	}
	return "sessions"
}
