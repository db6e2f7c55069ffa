package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/pkg/migrations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		s, db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		return migrateStore(cfg, db)
	},
}

func init() {
	addCommonFlags(migrateCmd.Flags())
}

func migrateStore(cfg *config.Config, db *gorm.DB) error {
	zap.S().Infow("migrating the db", "folder", cfg.Service.MigrationFolder)
	if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, err := migrations.Version(db)
	if err != nil {
		return err
	}
	zap.S().Infow("db migrated", "version", version)
	return nil
}
