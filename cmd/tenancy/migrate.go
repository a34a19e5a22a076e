package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		dbURL   string
		showVer bool
		list    bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listMigrations()
			}
			return runMigrate(dbURL, showVer, dryRun)
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL)")
	cmd.Flags().BoolVar(&showVer, "version", false, "Show current schema version")
	cmd.Flags().BoolVar(&list, "list", false, "List all migrations")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print pending migrations without applying them")
	return cmd
}

func runMigrate(dbURL string, showVer, dryRun bool) error {
	cfg := config.LoadServerConfig()
	logger := newLogger(cfg.Environment)

	if dbURL == "" {
		dbURL = cfg.DatabaseURL
	}
	if dbURL == "" {
		return errors.New("database URL required: use --db or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbCfg := db.DefaultConfig(dbURL)
	dbCfg.MaxConns = 5
	dbCfg.MinConns = 1

	database, err := db.New(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if showVer {
		version, err := database.CurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("get schema version: %w", err)
		}
		fmt.Printf("Current schema version: %d\n", version)
		return nil
	}

	if dryRun {
		pending, err := database.PendingMigrations(ctx)
		if err != nil {
			return fmt.Errorf("list pending migrations: %w", err)
		}
		if len(pending) == 0 {
			fmt.Println("Schema is up to date")
			return nil
		}
		fmt.Println("Pending migrations:")
		for _, m := range pending {
			fmt.Printf("  %03d: %s\n", m.Version, m.Name)
		}
		return nil
	}

	logger.Info().Msg("running database migrations")
	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, err := database.CurrentVersion(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not get current version")
	} else {
		logger.Info().Int("version", version).Msg("migrations complete")
	}
	return nil
}

func listMigrations() error {
	migrations, err := db.GetMigrations()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	if len(migrations) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Println("Available migrations:")
	for _, m := range migrations {
		fmt.Printf("  %03d: %s\n", m.Version, m.Name)
	}
	return nil
}
