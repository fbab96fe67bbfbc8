package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/presence-tracker/internal/adapters/legacy"
	"github.com/spf13/cobra"
)

func newImportLegacyCmd(app *app) *cobra.Command {
	var usersPath string
	var timesPath string
	var timezone string

	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Import subscriptions and history from the legacy JSON files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if usersPath == "" && timesPath == "" {
				return errors.New("at least one of --users or --times is required")
			}

			loc, err := app.cfg.Location()
			if err != nil {
				return err
			}
			if timezone != "" {
				loc, err = time.LoadLocation(timezone)
				if err != nil {
					return fmt.Errorf("load timezone %q: %w", timezone, err)
				}
			}

			data, err := legacy.Load(usersPath, timesPath, loc)
			if err != nil {
				return err
			}

			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				result, err := s.engine.Import(cmd.Context(), data.Subscriptions, data.Records)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"subscribed %d, records created %d, records merged %d, sessions added %d, sessions skipped %d\n",
					result.Subscribed, result.RecordsCreated, result.RecordsMerged,
					result.SessionsAdded, result.SessionsSkipped+data.Skipped)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&usersPath, "users", "", "Path to the legacy users JSON file")
	cmd.Flags().StringVar(&timesPath, "times", "", "Path to the legacy online times JSON file")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone for timestamps without an offset (default: report.timezone)")

	return cmd
}
