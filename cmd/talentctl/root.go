package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "talentctl",
		Short:         "Trigger and inspect talent submission syncs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "Base URL of the talentsync server (default $TALENTSYNC_URL or http://localhost:9080)")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "Bearer token (default $TALENTSYNC_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newGrantCommand(ctx))
	rootCmd.AddCommand(newLoadTestCommand(ctx))

	return rootCmd
}
