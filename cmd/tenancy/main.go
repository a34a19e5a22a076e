// Package main is the entrypoint for the tenancy service.
//
// @title           Tenancy API
// @version         1.0
// @description     Organizations, teams, role-based access and invitations.
//
// @BasePath  /api/v1
//
// @securityDefinitions.apikey SessionAuth
// @in cookie
// @name tenancy_session
// @description Session cookie set by the authentication provider
//
// @tag.name Organizations
// @tag.description Organization management
// @tag.name Teams
// @tag.description Organization and standalone teams
// @tag.name Invitations
// @tag.description Invitation lifecycle
package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "tenancy",
		Short: "Multi-tenant organizations, teams and invitations",
		Long: `tenancy serves the organization, team, membership and invitation API.

Configuration is read from the environment. A .env file in the working
directory is loaded first when present.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			if envFile != "" {
				return config.LoadDotEnv(envFile)
			}
			return config.LoadDotEnv()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default .env)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newSweepCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tenancy %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
		},
	}
}

// newLogger returns a JSON logger in production and a console logger elsewhere.
func newLogger(env config.Environment) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if env != config.EnvProduction {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}
	return logger
}
