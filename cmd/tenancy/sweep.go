package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/invites"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-invitations",
		Short: "Mark expired pending invitations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadServerConfig()
			logger := newLogger(cfg.Environment)
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			dbCfg := db.DefaultConfig(cfg.DatabaseURL)
			dbCfg.MaxConns = 2
			dbCfg.MinConns = 1
			database, err := db.New(ctx, dbCfg, logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer database.Close()

			service := invites.NewService(database, invites.Config{BaseURL: cfg.BaseURL, TTL: cfg.InvitationTTL}, nil, nil, logger)
			n, err := service.SweepExpired(ctx)
			if err != nil {
				return fmt.Errorf("sweep invitations: %w", err)
			}
			logger.Info().Int64("expired", n).Msg("invitation sweep complete")
			return nil
		},
	}
}
