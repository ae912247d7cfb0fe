package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/cloudbox/internal/config"
	"github.com/templui/cloudbox/internal/db"
	"github.com/templui/cloudbox/internal/logger"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(false)
		},
	})
	return cmd
}

// migrate opens the database directly: the app would run migrations on start.
func migrate(up bool) error {
	cfg := config.Load()
	flush := logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)
	defer flush()

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if up {
		return db.RunMigrations(database.DB, cfg.DBDriver)
	}
	return db.MigrateDown(database.DB, cfg.DBDriver)
}
