package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"feedesk/internal/config"
	"feedesk/internal/storage"
	"feedesk/internal/storage/postgres"
)

var cmdMigrate = &cli.Command{
	Name:  "migrate",
	Usage: "Database migration commands",
	Commands: []*cli.Command{
		{
			Name:   "up",
			Usage:  "Run all pending migrations",
			Action: migrateUp,
		},
		{
			Name:   "version",
			Usage:  "Print the current version of the database",
			Action: migrateVersion,
		},
	},
}

func migrateUp(ctx context.Context, cmd *cli.Command) error {
	cfg, logger := loadConfig(cmd)
	switch cfg.DataBackend {
	case config.BackendSQLite:
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("backend %q has no schema to migrate", cfg.DataBackend)
	}
	logger.Info("Migrations completed successfully", "backend", cfg.DataBackend)
	return nil
}

func migrateVersion(ctx context.Context, cmd *cli.Command) error {
	cfg, _ := loadConfig(cmd)
	switch cfg.DataBackend {
	case config.BackendSQLite:
		version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		fmt.Printf("Database version: %d (dirty: %t)\n", version, dirty)
	case config.BackendPostgres:
		version, err := postgres.SchemaVersion(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("Database version: %d\n", version)
	default:
		return fmt.Errorf("backend %q has no schema version", cfg.DataBackend)
	}
	return nil
}
