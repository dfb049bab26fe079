package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digkill/hydrastudio/internal/config"
	"github.com/digkill/hydrastudio/internal/database"
)

func newMigrateCommand(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the profile and catalogue tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("database connect: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("database migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date")
			return nil
		},
	}
}
