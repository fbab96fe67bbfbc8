package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/presence-tracker/internal/adapters/secrets"
	"github.com/spf13/cobra"
)

func newSecretCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage stored credentials",
		Long: "Manage credentials kept in pass or under <data dir>/secrets.\n" +
			"Reference a stored secret from config with source.token = \"secret:<key>\".",
	}

	cmd.AddCommand(newSecretSetCmd(app), newSecretDeleteCmd(app))

	return cmd
}

func newSecretSetCmd(app *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret; the value is read from stdin unless --value is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("value") {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read secret value: %w", err)
				}
				value = strings.TrimRight(string(raw), "\r\n")
			}
			if value == "" {
				return errors.New("secret value is empty")
			}

			key := args[0]
			if err := app.secretStore.Put(cmd.Context(), key, value); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %q. Reference it as %s%s.\n", key, secrets.RefPrefix, key)
			return err
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Secret value (default: read from stdin)")

	return cmd
}

func newSecretDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.secretStore.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret %q.\n", args[0])
			return err
		},
	}
}
