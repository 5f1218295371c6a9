package main

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/docflow/edms/pkg/audit"
	"github.com/docflow/edms/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		cfg, err := loadConfig(cmd)
		if err != nil {
			glog.Fatalf("Failed to load config: %v", err)
		}
		db, err := openDatabase(cfg.Database)
		if err != nil {
			glog.Fatalf("Failed to connect to database: %v", err)
		}
		if err := store.Migrate(cmd.Context(), store.NewMigrationLocker(db), store.New(db), audit.NewGormRecorder(db)); err != nil {
			glog.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("schema is up to date", "database", cfg.Database.Type)
	},
}
