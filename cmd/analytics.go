package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/presence-tracker/internal/adapters/httpapi"
	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/spf13/cobra"
)

const noDataMessage = "No data available for analysis."

func newAnalyticsCmd(app *app) *cobra.Command {
	var asJSON bool
	var deliverTo string

	cmd := &cobra.Command{
		Use:   "analytics <entity-id>",
		Short: "Show activity analytics for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.EntityID(args[0])
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				if deliverTo != "" {
					return deliverAnalytics(cmd, s, id, domain.Destination(deliverTo))
				}

				analytics, err := s.engine.GetAnalytics(cmd.Context(), id)
				if errors.Is(err, domain.ErrNoData) {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), noDataMessage)
					return err
				}
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(httpapi.NewAnalyticsResponse(analytics))
				}
				return writeAnalytics(cmd, app, analytics)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().StringVar(&deliverTo, "deliver", "", "Deliver the charts to a file:// or http(s) destination instead of printing them")

	return cmd
}

func deliverAnalytics(cmd *cobra.Command, s *session, id domain.EntityID, dest domain.Destination) error {
	delivered, err := s.engine.DeliverAnalytics(cmd.Context(), id, dest)
	if errors.Is(err, domain.ErrNoData) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), noDataMessage)
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d charts to %s.\n", delivered, dest)
	return err
}

func writeAnalytics(cmd *cobra.Command, app *app, analytics application.Analytics) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "%s (%s): %d sessions, %.1f minutes in total\n\n",
		analytics.DisplayName, analytics.EntityID, analytics.Sessions, analytics.TotalMinutes); err != nil {
		return err
	}

	for _, series := range analytics.Series() {
		if len(series.Values) == 0 {
			continue
		}
		payload, err := app.chartRenderer.Render(cmd.Context(), series)
		if err != nil {
			return fmt.Errorf("render %q: %w", series.Title, err)
		}
		if err := writeChart(out, payload); err != nil {
			return err
		}
	}
	return nil
}

func writeChart(out io.Writer, payload domain.Payload) error {
	if _, err := out.Write(payload.Body); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}
