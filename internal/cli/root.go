package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the yoda server.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "yoda",
		Short: "Delta-sourced entity store",
		Long:  "Serves accounts, organizations and transactions from an append-only delta log with a searchable projection.",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", ".", "directory containing config.yaml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}
