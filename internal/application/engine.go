package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/coder/quartz"
)

type EngineDeps struct {
	Subscriptions ports.SubscriptionRepository
	Sessions      ports.SessionRepository
	Schedule      ports.ScheduleRepository
	Source        ports.PresenceSource
	Resolver      ports.IdentityResolver
	Deliverer     ports.Deliverer
	Renderer      ports.Renderer
	Clock         quartz.Clock
	Logger        slog.Logger
	Metrics       *observability.Metrics
}

type EngineOptions struct {
	Tracker  TrackerOptions
	Report   ReportSchedulerOptions
	Location *time.Location
}

// Engine owns the registry, the session store, the tracker and the report
// scheduler, and exposes the command surface used by every front end.
type Engine struct {
	Registry  *Registry
	Sessions  *SessionStore
	Tracker   *Tracker
	Scheduler *ReportScheduler
	Analytics *AnalyticsService

	clock  quartz.Clock
	logger slog.Logger
}

func NewEngine(deps EngineDeps, opts EngineOptions) (*Engine, error) {
	if deps.Subscriptions == nil || deps.Sessions == nil || deps.Schedule == nil {
		return nil, errors.New("engine requires subscription, session and schedule repositories")
	}
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if opts.Location == nil {
		opts.Location = opts.Report.Location
	}
	if opts.Report.Location == nil {
		opts.Report.Location = opts.Location
	}

	registry := NewRegistry(deps.Subscriptions, deps.Logger.Named("registry"))
	store := NewSessionStore(deps.Sessions, deps.Logger.Named("sessions"), deps.Metrics)
	scheduler, err := NewReportScheduler(
		deps.Schedule, registry, store, deps.Deliverer, deps.Clock,
		deps.Logger.Named("report"), deps.Metrics, opts.Report,
	)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		Registry:  registry,
		Sessions:  store,
		Scheduler: scheduler,
		Analytics: NewAnalyticsService(store, deps.Renderer, deps.Deliverer, opts.Location, deps.Logger.Named("analytics"), deps.Metrics),
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if deps.Source != nil {
		engine.Tracker = NewTracker(
			deps.Source, deps.Resolver, registry, store, deps.Clock,
			deps.Logger.Named("tracker"), deps.Metrics, opts.Tracker,
		)
	}
	return engine, nil
}

// Load restores all persisted state. The report cycle resumes if it was
// enabled.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Registry.Load(ctx); err != nil {
		return err
	}
	if err := e.Sessions.Load(ctx); err != nil {
		return err
	}
	return e.Scheduler.Load(ctx)
}

// Run drives the tracker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.Tracker == nil {
		return errors.New("no presence source configured")
	}
	return e.Tracker.Run(ctx)
}

// Close stops the report cycle and writes the session store one last time.
func (e *Engine) Close(ctx context.Context) error {
	e.Scheduler.Close()
	if err := e.Sessions.Flush(ctx); err != nil {
		return err
	}
	e.logger.Debug(ctx, "engine closed")
	return nil
}

func (e *Engine) Subscribe(ctx context.Context, id domain.EntityID) (SubscribeResult, error) {
	return e.Registry.Subscribe(ctx, id)
}

func (e *Engine) Unsubscribe(ctx context.Context, id domain.EntityID) (bool, error) {
	return e.Registry.Unsubscribe(ctx, id)
}

func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	if e.Tracker == nil {
		return TickResult{}, errors.New("no presence source configured")
	}
	return e.Tracker.Tick(ctx)
}

func (e *Engine) StartWeeklyReport(ctx context.Context, dest domain.Destination) error {
	return e.Scheduler.Start(ctx, dest)
}

func (e *Engine) StopWeeklyReport(ctx context.Context) error {
	return e.Scheduler.Stop(ctx)
}

func (e *Engine) GetAnalytics(ctx context.Context, id domain.EntityID) (Analytics, error) {
	return e.Analytics.Get(ctx, id)
}

func (e *Engine) DeliverAnalytics(ctx context.Context, id domain.EntityID, dest domain.Destination) (int, error) {
	n, err := e.Analytics.Deliver(ctx, id, dest)
	if err != nil {
		return n, fmt.Errorf("deliver analytics for %s: %w", id, err)
	}
	return n, nil
}

// PreviewReport builds the report the next deadline would deliver right now.
func (e *Engine) PreviewReport() Report {
	return e.Scheduler.Preview()
}
