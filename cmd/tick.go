package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/config"
	"github.com/spf13/cobra"
)

var errTickNeedsPollingSource = errors.New("tick needs an http presence source; websocket sources are consumed by `presence serve`")

type tickResultJSON struct {
	At       string   `json:"at"`
	Observed int      `json:"observed"`
	Created  int      `json:"created"`
	Opened   int      `json:"opened"`
	Closed   int      `json:"closed"`
	Ignored  int      `json:"ignored"`
	Pruned   []string `json:"pruned"`
}

func newTickCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Poll the presence source once and record transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.Source.Kind == config.SourceKindWebsocket {
				return errTickNeedsPollingSource
			}

			return app.withSession(cmd.Context(), openOptions{withSource: true}, func(s *session) error {
				var result application.TickResult
				poll := func(ctx context.Context) error {
					var err error
					result, err = s.engine.Tick(ctx)
					return err
				}

				if asJSON {
					if err := poll(cmd.Context()); err != nil {
						return err
					}
					return writeTickJSON(cmd, result)
				}

				if err := runPollProgress(cmd.Context(), cmd.ErrOrStderr(), poll); err != nil {
					return err
				}
				return writeTickSummary(cmd, result)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeTickSummary(cmd *cobra.Command, result application.TickResult) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(),
		"observed %d, new %d, online %d, offline %d, ignored %d, pruned %d\n",
		result.Observed, result.Created, result.Opened, result.Closed, result.Ignored, len(result.Pruned))
	return err
}

func writeTickJSON(cmd *cobra.Command, result application.TickResult) error {
	pruned := make([]string, 0, len(result.Pruned))
	for _, id := range result.Pruned {
		pruned = append(pruned, string(id))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tickResultJSON{
		At:       result.At.UTC().Format(time.RFC3339),
		Observed: result.Observed,
		Created:  result.Created,
		Opened:   result.Opened,
		Closed:   result.Closed,
		Ignored:  result.Ignored,
		Pruned:   pruned,
	})
}
