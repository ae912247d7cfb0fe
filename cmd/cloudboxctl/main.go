package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/cloudbox/cmd/cloudboxctl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cloudboxctl",
		Short:         "Maintenance tools for cloudbox",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.CleanupCmd())
	rootCmd.AddCommand(cmd.ReconcileCmd())
	rootCmd.AddCommand(cmd.FixFavoritesCmd())
	rootCmd.AddCommand(cmd.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
