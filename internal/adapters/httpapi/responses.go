package httpapi

import (
	"time"

	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/domain"
)

type SeriesResponse struct {
	Title  string    `json:"title"`
	XLabel string    `json:"x_label"`
	YLabel string    `json:"y_label"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type AnalyticsResponse struct {
	EntityID     domain.EntityID  `json:"entity_id"`
	DisplayName  string           `json:"display_name"`
	Sessions     int              `json:"sessions"`
	TotalMinutes float64          `json:"total_minutes"`
	ByWeekday    map[string]int   `json:"by_weekday"`
	ByHour       [24]int          `json:"by_hour"`
	Series       []SeriesResponse `json:"series"`
}

func NewAnalyticsResponse(a application.Analytics) AnalyticsResponse {
	byWeekday := make(map[string]int, len(a.ByWeekday))
	for i, count := range a.ByWeekday {
		byWeekday[domain.WeekdayLabels[i]] = count
	}

	series := make([]SeriesResponse, 0, 3)
	for _, s := range a.Series() {
		series = append(series, SeriesResponse{
			Title:  s.Title,
			XLabel: s.XLabel,
			YLabel: s.YLabel,
			Labels: s.Labels,
			Values: s.Values,
		})
	}

	return AnalyticsResponse{
		EntityID:     a.EntityID,
		DisplayName:  a.DisplayName,
		Sessions:     a.Sessions,
		TotalMinutes: a.TotalMinutes,
		ByWeekday:    byWeekday,
		ByHour:       a.ByHour,
		Series:       series,
	}
}

type EntityStatusResponse struct {
	EntityID     domain.EntityID `json:"entity_id"`
	DisplayName  string          `json:"display_name"`
	Subscribed   bool            `json:"subscribed"`
	Online       bool            `json:"online"`
	OnlineSince  *time.Time      `json:"online_since,omitempty"`
	Sessions     int             `json:"sessions"`
	TotalMinutes float64         `json:"total_minutes"`
}

type ReportStatusResponse struct {
	Enabled      bool               `json:"enabled"`
	Destination  domain.Destination `json:"destination,omitempty"`
	LastReportAt *time.Time         `json:"last_report_at,omitempty"`
	NextReportAt *time.Time         `json:"next_report_at,omitempty"`
}

type StatusResponse struct {
	Entities []EntityStatusResponse `json:"entities"`
	Report   ReportStatusResponse   `json:"report"`
}

func NewStatusResponse(s application.Status) StatusResponse {
	out := StatusResponse{
		Entities: make([]EntityStatusResponse, 0, len(s.Entities)),
		Report: ReportStatusResponse{
			Enabled:      s.Report.Enabled,
			Destination:  s.Report.Destination,
			LastReportAt: optionalTime(s.Report.LastReportAt),
			NextReportAt: optionalTime(s.NextReport),
		},
	}
	for _, e := range s.Entities {
		out.Entities = append(out.Entities, EntityStatusResponse{
			EntityID:     e.EntityID,
			DisplayName:  e.DisplayName,
			Subscribed:   e.Subscribed,
			Online:       e.Online,
			OnlineSince:  optionalTime(e.OnlineSince),
			Sessions:     e.Sessions,
			TotalMinutes: e.TotalMinutes,
		})
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
