package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/bnema/presence-tracker/internal/adapters/httpapi"
	statusadapter "github.com/bnema/presence-tracker/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked entities and the report cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				status := s.engine.Status()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(httpapi.NewStatusResponse(status))
				}

				rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.clock.Now()})
				if err != nil {
					return fmt.Errorf("render status: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
