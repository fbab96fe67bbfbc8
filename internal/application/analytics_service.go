package application

import (
	"context"
	"fmt"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
)

// Analytics aggregates the closed sessions of one entity.
type Analytics struct {
	EntityID     domain.EntityID
	DisplayName  string
	Sessions     int
	TotalMinutes float64
	ByWeekday    [7]int
	ByHour       [24]int
	Durations    []domain.SeriesPoint
}

// Series returns the weekday, hour-of-day and duration series in that order.
func (a Analytics) Series() []domain.Series {
	weekday := domain.Series{
		Title:  fmt.Sprintf("Sessions by weekday for %s", a.DisplayName),
		XLabel: "Day of week",
		YLabel: "Sessions",
		Labels: domain.WeekdayLabels[:],
		Values: make([]float64, len(a.ByWeekday)),
	}
	for i, count := range a.ByWeekday {
		weekday.Values[i] = float64(count)
	}

	hourly := domain.Series{
		Title:  fmt.Sprintf("Sessions by hour for %s", a.DisplayName),
		XLabel: "Hour of day",
		YLabel: "Sessions",
		Labels: make([]string, len(a.ByHour)),
		Values: make([]float64, len(a.ByHour)),
	}
	for hour, count := range a.ByHour {
		hourly.Labels[hour] = hourLabel(hour)
		hourly.Values[hour] = float64(count)
	}

	durations := domain.Series{
		Title:  fmt.Sprintf("Session durations for %s", a.DisplayName),
		XLabel: "Session start",
		YLabel: "Minutes",
		Labels: make([]string, len(a.Durations)),
		Values: make([]float64, len(a.Durations)),
	}
	for i, point := range a.Durations {
		durations.Labels[i] = point.At.Format("Jan 02 15:04")
		durations.Values[i] = point.DurationMinutes
	}

	return []domain.Series{weekday, hourly, durations}
}

func hourLabel(hour int) string {
	return time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC).Format("3:04 PM")
}

type AnalyticsService struct {
	store     *SessionStore
	renderer  ports.Renderer
	deliverer ports.Deliverer
	loc       *time.Location
	logger    slog.Logger
	metrics   *observability.Metrics
}

func NewAnalyticsService(
	store *SessionStore,
	renderer ports.Renderer,
	deliverer ports.Deliverer,
	loc *time.Location,
	logger slog.Logger,
	metrics *observability.Metrics,
) *AnalyticsService {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsService{
		store:     store,
		renderer:  renderer,
		deliverer: deliverer,
		loc:       loc,
		logger:    logger,
		metrics:   metrics,
	}
}

// Get computes analytics for id. It fails with ErrNoData when the entity has
// no record or no closed sessions.
func (s *AnalyticsService) Get(_ context.Context, id domain.EntityID) (Analytics, error) {
	record, err := s.store.Get(id)
	if err != nil {
		return Analytics{}, domain.ErrNoData
	}
	if len(record.Sessions) == 0 {
		return Analytics{}, domain.ErrNoData
	}

	durations := domain.DurationSeries(record)
	for i := range durations {
		durations[i].At = durations[i].At.In(s.loc)
	}

	return Analytics{
		EntityID:     record.EntityID,
		DisplayName:  displayName(record),
		Sessions:     len(record.Sessions),
		TotalMinutes: domain.TotalMinutes(record.Sessions),
		ByWeekday:    domain.SessionsByWeekday(record, s.loc),
		ByHour:       domain.SessionsByHour(record, s.loc),
		Durations:    durations,
	}, nil
}

// Deliver renders every analytics series for id and sends each one to dest.
// It returns how many payloads were delivered.
func (s *AnalyticsService) Deliver(ctx context.Context, id domain.EntityID, dest domain.Destination) (int, error) {
	if err := dest.Validate(); err != nil {
		return 0, err
	}
	if s.renderer == nil || s.deliverer == nil {
		return 0, fmt.Errorf("analytics delivery is not configured")
	}

	analytics, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, series := range analytics.Series() {
		payload, err := s.renderer.Render(ctx, series)
		if err != nil {
			return delivered, fmt.Errorf("render %q: %w", series.Title, err)
		}
		err = s.deliverer.Deliver(ctx, dest, payload)
		s.metrics.ObserveDelivery(payload.Kind, err)
		if err != nil {
			return delivered, fmt.Errorf("deliver %q: %w", series.Title, err)
		}
		delivered++
	}

	s.logger.Info(ctx, "analytics delivered",
		slog.F("entity_id", analytics.EntityID),
		slog.F("destination", dest),
		slog.F("payloads", delivered),
	)
	return delivered, nil
}
