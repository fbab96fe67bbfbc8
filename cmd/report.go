package cmd

import (
	"fmt"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/spf13/cobra"
)

func newReportCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Manage the periodic online report",
	}

	cmd.AddCommand(
		newReportStartCmd(app),
		newReportStopCmd(app),
		newReportPreviewCmd(app),
	)

	return cmd
}

func newReportStartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <destination>",
		Short: "Enable the report cycle and deliver to destination",
		Long: "Enable the report cycle. The destination is a file:// directory or an http(s) webhook URL.\n" +
			"Reports are delivered while `presence serve` runs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				dest := domain.Destination(args[0])
				if err := s.engine.StartWeeklyReport(cmd.Context(), dest); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if _, err := fmt.Fprintf(out, "Weekly online report enabled; delivering to %s.\n", dest); err != nil {
					return err
				}
				if next, ok := s.engine.Scheduler.NextDeadline(); ok {
					_, err := fmt.Fprintf(out, "Next report: %s\n", next.Format("2006-01-02 15:04 MST"))
					return err
				}
				return nil
			})
		},
	}
}

func newReportStopCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Disable the report cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				if err := s.engine.StopWeeklyReport(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Weekly online report disabled.")
				return err
			})
		},
	}
}

func newReportPreviewCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Print the report that would be delivered now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				_, err := fmt.Fprint(cmd.OutOrStdout(), s.engine.PreviewReport().Text())
				return err
			})
		},
	}
}
