package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digkill/hydrastudio/internal/config"
)

func newRootCommand() *cobra.Command {
	var envFlag string

	rootCmd := &cobra.Command{
		Use:           "studio",
		Short:         "Hydra music-video studio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFlag == "" {
				return nil
			}
			if err := os.Setenv("CONFIG_ENV_PATH", envFlag); err != nil {
				return fmt.Errorf("set env path: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "Path to a .env file overriding the default lookup")

	rootCmd.AddCommand(newServeCommand(config.Load))
	rootCmd.AddCommand(newMigrateCommand(config.Load))
	rootCmd.AddCommand(newTestNotifyCommand(config.Load))

	return rootCmd
}
