package cmd

import (
	"github.com/spf13/cobra"
	"github.com/templui/cloudbox/internal/app"
)

func CleanupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge trash older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.CleanupService.Run(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be purged without deleting")
	return cmd
}

func ReconcileCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute cached storage usage from the file rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if userID != "" {
					result, err := a.StorageService.Reconcile(cmd.Context(), userID)
					if err != nil {
						return err
					}
					return printJSON(result)
				}

				summary, err := a.StorageService.ReconcileAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "reconcile a single user")
	return cmd
}

func FixFavoritesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-favorites",
		Short: "Ensure every user has exactly one default favorite folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.FavoriteService.FixDefaultFolders(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}
