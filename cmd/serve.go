package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog/v3"
	"github.com/bnema/presence-tracker/internal/adapters/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *app) *cobra.Command {
	var addr string
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker, the report cycle and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = app.cfg.HTTP.Addr
			}
			if noHTTP {
				addr = ""
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.withSession(ctx, openOptions{withSource: true}, func(s *session) error {
				return serve(ctx, app, s, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: http.addr)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Do not serve the HTTP API")

	return cmd
}

func serve(ctx context.Context, app *app, s *session, addr string) error {
	logger := app.logger
	eg, ctx := errgroup.WithContext(ctx)

	if s.source.run != nil {
		eg.Go(func() error {
			return s.source.run(ctx)
		})
	}

	eg.Go(func() error {
		return s.engine.Run(ctx)
	})

	if addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           httpapi.New(s.engine, app.registry, logger.Named("http"), httpapi.WithFileRoot(app.cfg.HTTP.FileRoot)).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		if !isLoopback(addr) {
			logger.Warn(ctx, "http api has no authentication and is reachable beyond loopback", slog.F("addr", addr))
		}

		eg.Go(func() error {
			logger.Info(ctx, "http api listening", slog.F("addr", addr), slog.F("file_root", app.cfg.HTTP.FileRoot))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})

		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info(ctx, "presence tracker running",
		slog.F("data_dir", app.cfg.DataDir),
		slog.F("source", app.cfg.Source.Kind),
		slog.F("interval", app.cfg.Tracker.Interval),
	)

	err := eg.Wait()
	logger.Info(context.WithoutCancel(ctx), "presence tracker stopped")
	return err
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
