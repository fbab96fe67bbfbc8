package cmd

import (
	"fmt"

	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/spf13/cobra"
)

func newSubscribeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <entity-id>",
		Short: "Opt an entity in to presence tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				result, err := s.engine.Subscribe(cmd.Context(), domain.EntityID(args[0]))
				if err != nil {
					return err
				}

				msg := "You are now opted in to being tracked."
				if result == application.SubscribeAlreadyPresent {
					msg = "You are already opted in to being tracked."
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}
}

func newUnsubscribeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <entity-id>",
		Short: "Opt an entity out of presence tracking",
		Long:  "Opt an entity out of presence tracking. Recorded history is kept and still shows in analytics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), openOptions{}, func(s *session) error {
				removed, err := s.engine.Unsubscribe(cmd.Context(), domain.EntityID(args[0]))
				if err != nil {
					return err
				}

				msg := "You are no longer tracked."
				if !removed {
					msg = "You were not opted in to being tracked."
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}
}
