package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/coder/quartz"
)

const (
	DefaultTrackInterval = time.Minute
	DefaultPruneAfter    = 1
)

type TrackerOptions struct {
	Interval time.Duration
	// PruneAfter is the number of consecutive not-found resolutions after
	// which a record is dropped.
	PruneAfter int
}

type TickResult struct {
	At       time.Time
	Observed int
	Created  int
	Opened   int
	Closed   int
	Ignored  int
	Pruned   []domain.EntityID
}

// Tracker polls the presence source and folds each snapshot into the session
// store for subscribed entities.
type Tracker struct {
	source   ports.PresenceSource
	resolver ports.IdentityResolver
	registry *Registry
	store    *SessionStore
	clock    quartz.Clock
	logger   slog.Logger
	metrics  *observability.Metrics

	interval   time.Duration
	pruneAfter int

	tickMu   sync.Mutex
	failures map[domain.EntityID]int
}

func NewTracker(
	source ports.PresenceSource,
	resolver ports.IdentityResolver,
	registry *Registry,
	store *SessionStore,
	clock quartz.Clock,
	logger slog.Logger,
	metrics *observability.Metrics,
	opts TrackerOptions,
) *Tracker {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTrackInterval
	}
	if opts.PruneAfter <= 0 {
		opts.PruneAfter = DefaultPruneAfter
	}

	return &Tracker{
		source:     source,
		resolver:   resolver,
		registry:   registry,
		store:      store,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		interval:   opts.Interval,
		pruneAfter: opts.PruneAfter,
		failures:   map[domain.EntityID]int{},
	}
}

// Run ticks once immediately and then on every interval until ctx is done.
// Ticks never overlap.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info(ctx, "presence tracker started", slog.F("interval", t.interval.String()))

	t.runTick(ctx)
	waiter := t.clock.TickerFunc(ctx, t.interval, func() error {
		t.runTick(ctx)
		return nil
	}, "tracker", "tick")

	err := waiter.Wait()
	t.logger.Info(ctx, "presence tracker stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (t *Tracker) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := t.Tick(ctx); err != nil && !errors.Is(err, domain.ErrSnapshotUnavailable) {
		t.logger.Error(ctx, "presence tick failed", slog.Error(err))
	}
}

type resolution struct {
	name string
	err  error
}

// Tick performs one poll. A failed snapshot leaves the store untouched.
func (t *Tracker) Tick(ctx context.Context) (TickResult, error) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	started := t.clock.Now("tracker", "tick_start")

	snapshot, err := t.source.Snapshot(ctx)
	if err != nil {
		t.metrics.ObserveTick("skipped", t.clock.Since(started).Seconds())
		t.logger.Warn(ctx, "presence snapshot unavailable, skipping tick", slog.Error(err))
		if errors.Is(err, domain.ErrSnapshotUnavailable) {
			return TickResult{}, err
		}
		return TickResult{}, fmt.Errorf("%w: %w", domain.ErrSnapshotUnavailable, err)
	}

	subscribed := t.registry.snapshot()
	observed := make(map[domain.EntityID]domain.Observation)
	for id, observation := range snapshot.Index() {
		if subscribed.Has(id) {
			observed[id] = observation
		}
	}

	// Entities with history that the snapshot did not mention are resolved
	// outside the store lock.
	resolutions := map[domain.EntityID]resolution{}
	if t.resolver != nil {
		for _, id := range t.store.IDs() {
			if !subscribed.Has(id) {
				continue
			}
			if _, ok := observed[id]; ok {
				continue
			}
			name, resolveErr := t.resolver.ResolveDisplayName(ctx, id)
			resolutions[id] = resolution{name: name, err: resolveErr}
		}
	}

	now := t.clock.Now("tracker", "observe").UTC()
	result := TickResult{At: now, Observed: len(observed)}
	failures := make(map[domain.EntityID]int, len(t.failures))
	for id, count := range t.failures {
		failures[id] = count
	}

	err = t.store.Update(context.WithoutCancel(ctx), func(records map[domain.EntityID]*domain.PresenceRecord) error {
		for id, observation := range observed {
			record, ok := records[id]
			if !ok {
				record = domain.NewPresenceRecord(id, observation.DisplayName)
				records[id] = record
				result.Created++
			}
			if observation.DisplayName != "" {
				record.DisplayName = observation.DisplayName
			}
			delete(failures, id)

			switch record.Observe(observation.Status, now) {
			case domain.TransitionOpened:
				result.Opened++
			case domain.TransitionClosed:
				result.Closed++
			case domain.TransitionIgnored:
				result.Ignored++
			}
		}

		for id, res := range resolutions {
			record, ok := records[id]
			if !ok {
				continue
			}
			switch {
			case res.err == nil:
				delete(failures, id)
				if res.name != "" {
					record.DisplayName = res.name
				}
			case errors.Is(res.err, domain.ErrEntityNotFound):
				failures[id]++
				if failures[id] < t.pruneAfter {
					t.logger.Info(ctx, "entity could not be resolved",
						slog.F("entity_id", id),
						slog.F("attempts", failures[id]),
					)
					continue
				}
				t.logger.Warn(ctx, "pruning presence record for unresolvable entity",
					slog.F("entity_id", id),
					slog.F("display_name", record.DisplayName),
					slog.F("sessions_discarded", len(record.Sessions)),
				)
				delete(records, id)
				delete(failures, id)
				result.Pruned = append(result.Pruned, id)
			default:
				t.logger.Warn(ctx, "identity resolution failed",
					slog.F("entity_id", id),
					slog.Error(res.err),
				)
			}
		}
		return nil
	})
	if err != nil {
		t.metrics.ObserveTick("error", t.clock.Since(started).Seconds())
		return TickResult{}, fmt.Errorf("apply snapshot: %w", err)
	}
	t.failures = failures

	for i := 0; i < result.Opened; i++ {
		t.metrics.ObserveTransition(domain.TransitionOpened)
	}
	for i := 0; i < result.Closed; i++ {
		t.metrics.ObserveTransition(domain.TransitionClosed)
	}
	for i := 0; i < result.Ignored; i++ {
		t.metrics.ObserveTransition(domain.TransitionIgnored)
	}
	for range result.Pruned {
		t.metrics.ObservePrune()
	}
	t.metrics.ObserveTick("ok", t.clock.Since(started).Seconds())

	t.logger.Debug(ctx, "presence tick applied",
		slog.F("observed", result.Observed),
		slog.F("opened", result.Opened),
		slog.F("closed", result.Closed),
		slog.F("pruned", len(result.Pruned)),
	)
	return result, nil
}
