package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "presence",
		Short:         "Presence tracker: record when opted-in members are online",
		Long:          "presence polls a presence source, records online sessions for opted-in entities, delivers a periodic online report and computes per-entity activity analytics.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.init(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			app.shutdown()
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "path to a config file (default: <data dir>/config.toml)")
	rootCmd.PersistentFlags().StringVar(&app.dataDirFlag, "data-dir", "", "directory holding presence state (default: ~/.presence)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSubscribeCmd(app),
		newUnsubscribeCmd(app),
		newReportCmd(app),
		newAnalyticsCmd(app),
		newStatusCmd(app),
		newTickCmd(app),
		newImportLegacyCmd(app),
		newServeCmd(app),
		newSecretCmd(app),
	)

	return rootCmd
}
