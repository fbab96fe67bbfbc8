package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"
)

const DefaultReportSchedule = "0 0 * * 1"

var ErrSchedulerClosed = errors.New("report scheduler is closed")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// @weekly.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		expr = DefaultReportSchedule
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse report schedule %q: %w", expr, err)
	}
	return schedule, nil
}

type ReportSchedulerOptions struct {
	Schedule cron.Schedule
	Location *time.Location
	Mode     domain.ReportMode
	// MaxWait caps a single sleep so long waits re-check the wall clock.
	// Zero disables the cap.
	MaxWait time.Duration
}

// ReportScheduler delivers the periodic report at every cron deadline while
// enabled. At most one cycle runs at a time.
type ReportScheduler struct {
	repo      ports.ScheduleRepository
	registry  *Registry
	store     *SessionStore
	deliverer ports.Deliverer
	clock     quartz.Clock
	logger    slog.Logger
	metrics   *observability.Metrics

	schedule cron.Schedule
	loc      *time.Location
	mode     domain.ReportMode
	maxWait  time.Duration

	state atomic.Pointer[domain.ReportSchedule]

	mu       sync.Mutex
	running  bool
	deadline time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReportScheduler(
	repo ports.ScheduleRepository,
	registry *Registry,
	store *SessionStore,
	deliverer ports.Deliverer,
	clock quartz.Clock,
	logger slog.Logger,
	metrics *observability.Metrics,
	opts ReportSchedulerOptions,
) (*ReportScheduler, error) {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if opts.Schedule == nil {
		schedule, err := ParseSchedule(DefaultReportSchedule)
		if err != nil {
			return nil, err
		}
		opts.Schedule = schedule
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Mode == "" {
		opts.Mode = domain.ReportModeSinceLast
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unsupported report mode %q", opts.Mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ReportScheduler{
		repo:      repo,
		registry:  registry,
		store:     store,
		deliverer: deliverer,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		schedule:  opts.Schedule,
		loc:       opts.Location,
		mode:      opts.Mode,
		maxWait:   opts.MaxWait,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.state.Store(&domain.ReportSchedule{})
	return s, nil
}

// Load restores the persisted schedule and resumes the cycle when it was
// enabled.
func (s *ReportScheduler) Load(ctx context.Context) error {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptState) {
			return fmt.Errorf("load report schedule: %w", err)
		}
		s.logger.Error(ctx, "report schedule is malformed, reports stay disabled", slog.Error(err))
		loaded = domain.ReportSchedule{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(&loaded)
	if loaded.Enabled {
		if err := s.ensureRunningLocked(); err != nil {
			return err
		}
		s.logger.Info(ctx, "resumed weekly report", slog.F("destination", loaded.Destination))
	}
	return nil
}

// Start enables the report for dest. Calling it while a cycle is running
// only replaces the destination.
func (s *ReportScheduler) Start(ctx context.Context, dest domain.Destination) error {
	if err := dest.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrSchedulerClosed
	}

	next := *s.state.Load()
	next.Enabled = true
	next.Destination = dest
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("save report schedule: %w", err)
	}
	s.state.Store(&next)

	if err := s.ensureRunningLocked(); err != nil {
		return err
	}
	s.logger.Info(ctx, "weekly report enabled", slog.F("destination", dest))
	return nil
}

// Stop disables the report. The running cycle exits at its next wake-up
// without delivering.
func (s *ReportScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state.Load()
	next.Enabled = false
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("save report schedule: %w", err)
	}
	s.state.Store(&next)

	s.logger.Info(ctx, "weekly report disabled")
	return nil
}

// Close terminates the cycle and waits for it to return.
func (s *ReportScheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *ReportScheduler) State() domain.ReportSchedule {
	return *s.state.Load()
}

// NextDeadline returns the deadline the running cycle is waiting for.
func (s *ReportScheduler) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}, false
	}
	if s.deadline.IsZero() {
		// The cycle has not computed its first deadline yet.
		return s.schedule.Next(s.clock.Now("scheduler", "now").In(s.loc)), true
	}
	return s.deadline, true
}

// Preview builds the report that would be delivered now.
func (s *ReportScheduler) Preview() Report {
	state := s.State()
	return BuildReport(s.registry.List(), s.store.All(), s.mode, state.LastReportAt, s.clock.Now("scheduler", "preview"))
}

func (s *ReportScheduler) ensureRunningLocked() error {
	if s.running {
		return nil
	}
	if s.ctx.Err() != nil {
		return ErrSchedulerClosed
	}
	s.running = true
	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *ReportScheduler) loop() {
	defer s.wg.Done()

	for {
		now := s.clock.Now("scheduler", "now")
		deadline := s.schedule.Next(now.In(s.loc))

		s.mu.Lock()
		s.deadline = deadline
		s.mu.Unlock()

		s.logger.Debug(s.ctx, "waiting for report deadline", slog.F("deadline", deadline.Format(time.RFC3339)))
		if !s.sleepUntil(deadline) {
			s.mu.Lock()
			s.running = false
			s.deadline = time.Time{}
			s.mu.Unlock()
			return
		}
		if !s.wake(deadline) {
			return
		}
	}
}

func (s *ReportScheduler) sleepUntil(deadline time.Time) bool {
	for {
		wait := deadline.Sub(s.clock.Now("scheduler", "now"))
		if wait <= 0 {
			return true
		}
		if s.maxWait > 0 && wait > s.maxWait {
			wait = s.maxWait
		}

		timer := s.clock.NewTimer(wait, "scheduler", "deadline")
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// wake handles one deadline. It returns false when the cycle must exit.
func (s *ReportScheduler) wake(deadline time.Time) bool {
	s.mu.Lock()
	current := *s.state.Load()
	if !current.Enabled {
		s.running = false
		s.deadline = time.Time{}
		s.mu.Unlock()
		s.metrics.ObserveReport("disabled")
		s.logger.Info(s.ctx, "weekly report cycle exited")
		return false
	}
	s.mu.Unlock()

	if err := s.fire(current, deadline); err != nil {
		s.logger.Error(s.ctx, "weekly report delivery failed",
			slog.F("destination", current.Destination),
			slog.Error(err),
		)
	}
	return true
}

func (s *ReportScheduler) fire(current domain.ReportSchedule, at time.Time) error {
	if current.Destination == "" {
		s.metrics.ObserveReport("failed")
		return domain.ErrNoDestination
	}

	report := BuildReport(s.registry.List(), s.store.All(), s.mode, current.LastReportAt, at)
	payload := domain.TextPayload(report.Filename(), report.Text())
	err := s.deliverer.Deliver(s.ctx, current.Destination, payload)
	s.metrics.ObserveDelivery(payload.Kind, err)
	if err != nil {
		s.metrics.ObserveReport("failed")
		return err
	}
	s.metrics.ObserveReport("delivered")

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state.Load()
	next.LastReportAt = at.UTC()
	if err := s.repo.Save(context.WithoutCancel(s.ctx), next); err != nil {
		s.logger.Error(s.ctx, "failed to record report delivery", slog.Error(err))
	}
	s.state.Store(&next)

	s.logger.Info(s.ctx, "weekly report delivered",
		slog.F("destination", current.Destination),
		slog.F("entities", len(report.Lines)),
	)
	return nil
}
