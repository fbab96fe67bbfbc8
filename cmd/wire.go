package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/adapters/delivery/file"
	"github.com/bnema/presence-tracker/internal/adapters/delivery/router"
	"github.com/bnema/presence-tracker/internal/adapters/delivery/webhook"
	"github.com/bnema/presence-tracker/internal/adapters/render/chart"
	statusadapter "github.com/bnema/presence-tracker/internal/adapters/render/status"
	tomlrepo "github.com/bnema/presence-tracker/internal/adapters/repo/toml"
	"github.com/bnema/presence-tracker/internal/adapters/secrets"
	"github.com/bnema/presence-tracker/internal/adapters/source/httpsource"
	"github.com/bnema/presence-tracker/internal/adapters/source/wssource"
	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/config"
	"github.com/bnema/presence-tracker/internal/observability"
	"github.com/bnema/presence-tracker/internal/ports"
	"github.com/coder/quartz"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
)

const lockFileName = ".lock"

var errStateLocked = errors.New("presence state is locked by another process")

type app struct {
	configPath  string
	dataDirFlag string

	v        *viper.Viper
	cfg      config.Config
	logger   slog.Logger
	closeLog func()

	registry    *prometheus.Registry
	metrics     *observability.Metrics
	clock       quartz.Clock
	secretStore ports.SecretStore

	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	chartRenderer  ports.Renderer
}

// init loads configuration and logging. It runs before every command except
// version.
func (a *app) init(stderr io.Writer) error {
	v := config.New()
	if a.dataDirFlag != "" {
		v.Set(config.KeyDataDir, a.dataDirFlag)
	}
	if err := config.ReadIn(v, a.configPath); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Repositories resolve their paths from data.dir.
	v.Set(config.KeyDataDir, cfg.DataDir)

	secretStore, err := secrets.New(cfg.Secrets.Backend, cfg.DataDir)
	if err != nil {
		return err
	}

	logger, closeLog, err := observability.NewLogger(stderr, observability.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.v = v
	a.cfg = cfg
	a.logger = logger
	a.closeLog = closeLog
	a.registry = registry
	a.metrics = observability.NewMetrics(registry)
	a.clock = quartz.NewReal()
	a.secretStore = secretStore
	a.statusRenderer = statusadapter.Render
	a.chartRenderer = chart.New(0)
	return nil
}

func (a *app) shutdown() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

type openOptions struct {
	withSource bool
}

// session is an opened engine holding the state lock.
type session struct {
	engine *application.Engine
	source sourceBundle
	lock   *flock.Flock
	logger slog.Logger
}

// close flushes the engine and releases the state lock.
func (s *session) close(ctx context.Context) error {
	err := s.engine.Close(ctx)
	if unlockErr := s.lock.Unlock(); unlockErr != nil {
		err = errors.Join(err, fmt.Errorf("release state lock: %w", unlockErr))
	}
	return err
}

type sourceBundle struct {
	source   ports.PresenceSource
	resolver ports.IdentityResolver
	// run is set for sources that keep a background connection.
	run func(context.Context) error
}

// open takes the state lock, wires the engine and loads persisted state.
func (a *app) open(ctx context.Context, opts openOptions) (*session, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(a.cfg.DataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock presence state: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (%s); stop `presence serve` or use its HTTP API", errStateLocked, lock.Path())
	}

	s, err := a.wireSession(ctx, opts, lock)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (a *app) wireSession(ctx context.Context, opts openOptions, lock *flock.Flock) (*session, error) {
	subs, err := tomlrepo.NewSubscriptionRepository(a.v)
	if err != nil {
		return nil, fmt.Errorf("wire subscription repository: %w", err)
	}
	sessions, err := tomlrepo.NewSessionRepository(a.v)
	if err != nil {
		return nil, fmt.Errorf("wire session repository: %w", err)
	}
	schedule, err := tomlrepo.NewScheduleRepository(a.v)
	if err != nil {
		return nil, fmt.Errorf("wire schedule repository: %w", err)
	}

	var bundle sourceBundle
	if opts.withSource {
		bundle, err = a.buildSource(ctx)
		if err != nil {
			return nil, err
		}
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	cronSchedule, err := application.ParseSchedule(a.cfg.Report.Schedule)
	if err != nil {
		return nil, err
	}

	deliverer := router.New(map[string]ports.Deliverer{
		"file":  file.New(),
		"http":  webhook.New(a.cfg.Source.Timeout),
		"https": webhook.New(a.cfg.Source.Timeout),
	})

	engine, err := application.NewEngine(application.EngineDeps{
		Subscriptions: subs,
		Sessions:      sessions,
		Schedule:      schedule,
		Source:        bundle.source,
		Resolver:      bundle.resolver,
		Deliverer:     deliverer,
		Renderer:      a.chartRenderer,
		Clock:         a.clock,
		Logger:        a.logger,
		Metrics:       a.metrics,
	}, application.EngineOptions{
		Location: loc,
		Tracker: application.TrackerOptions{
			Interval:   a.cfg.Tracker.Interval,
			PruneAfter: a.cfg.Tracker.PruneAfter,
		},
		Report: application.ReportSchedulerOptions{
			Schedule: cronSchedule,
			Location: loc,
			Mode:     a.cfg.Report.Mode,
			MaxWait:  a.cfg.Report.MaxWait,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wire engine: %w", err)
	}

	if err := engine.Load(ctx); err != nil {
		engine.Scheduler.Close()
		return nil, fmt.Errorf("load presence state: %w", err)
	}

	return &session{engine: engine, source: bundle, lock: lock, logger: a.logger}, nil
}

func (a *app) buildSource(ctx context.Context) (sourceBundle, error) {
	if err := a.cfg.RequireSource(); err != nil {
		return sourceBundle{}, err
	}
	token, err := secrets.Resolve(ctx, a.secretStore, a.cfg.Source.Token)
	if err != nil {
		return sourceBundle{}, fmt.Errorf("source token: %w", err)
	}

	switch a.cfg.Source.Kind {
	case config.SourceKindWebsocket:
		ws := wssource.New(a.cfg.Source.URL, a.logger.Named("wssource"),
			wssource.WithToken(token),
			wssource.WithClock(a.clock),
		)
		return sourceBundle{source: ws, resolver: ws, run: ws.Run}, nil
	default:
		client, err := httpsource.New(a.cfg.Source.URL, a.cfg.Source.Timeout, httpsource.WithToken(token))
		if err != nil {
			return sourceBundle{}, err
		}
		return sourceBundle{source: client, resolver: client}, nil
	}
}

// withSession opens the engine for the duration of fn.
func (a *app) withSession(ctx context.Context, opts openOptions, fn func(*session) error) (err error) {
	s, err := a.open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if closeErr := s.close(closeCtx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(s)
}
