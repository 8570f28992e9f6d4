package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/rpattn/yoda/internal/config"
	"github.com/rpattn/yoda/internal/db"
)

// NewMigrateCommand creates the migrate command and its up/down subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the delta_log and projection schema",
	}

	up := &cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(cfg.Database); err != nil {
				return err
			}
			log.Println("Migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:          "down",
		Short:        "Roll back applied migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if err := db.RollbackMigrations(cfg.Database, steps); err != nil {
				return err
			}
			log.Printf("Rolled back %d migration(s)", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
