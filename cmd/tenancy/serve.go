package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MacJediWizard/tenancy/internal/api"
	"github.com/MacJediWizard/tenancy/internal/audit"
	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/MacJediWizard/tenancy/internal/config"
	"github.com/MacJediWizard/tenancy/internal/db"
	"github.com/MacJediWizard/tenancy/internal/invites"
	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/MacJediWizard/tenancy/internal/ratelimit"
	"github.com/MacJediWizard/tenancy/internal/shutdown"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending database migrations on startup")
	return cmd
}

func runServe(migrate bool) error {
	cfg := config.LoadServerConfig()
	logger := newLogger(cfg.Environment)

	logger.Info().
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("environment", string(cfg.Environment)).
		Msg("starting tenancy server")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer database.Close()

	if migrate {
		if err := database.Migrate(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to run migrations")
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("invalid REDIS_URL")
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Rate limiting fails open, so an unreachable Redis is not fatal.
		logger.Warn().Err(err).Msg("redis unreachable at startup, rate limits will fail open")
	}

	policies, err := ratelimit.LoadPolicies(cfg.RateLimitPolicyFile)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.RateLimitPolicyFile).Msg("failed to load rate limit policies")
		return err
	}
	limiter := ratelimit.NewLimiter(rdb, policies, m, logger)

	sessionCfg := auth.DefaultSessionConfig([]byte(cfg.SessionSecret), cfg.IsProduction())
	sessionCfg.MaxAge = cfg.SessionMaxAge
	for _, prev := range cfg.SessionPreviousSecrets {
		sessionCfg.PreviousSecrets = append(sessionCfg.PreviousSecrets, []byte(prev))
	}
	sessions, err := auth.NewSessionStore(sessionCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create session store")
		return err
	}

	recorder := audit.NewRecorder(database, m, logger)

	inviteService := invites.NewService(database, invites.Config{
		BaseURL: cfg.BaseURL,
		TTL:     cfg.InvitationTTL,
	}, nil, m, logger)

	sweeper := invites.NewSweeper(inviteService, cfg.InvitationSweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start invitation sweeper")
		return err
	}

	shutdownMgr := shutdown.NewManager(shutdown.DefaultConfig(), logger)

	routerCfg := api.DefaultConfig()
	routerCfg.Environment = cfg.Environment
	routerCfg.AllowedOrigins = cfg.CORSOrigins
	routerCfg.GlobalRateLimit = cfg.GlobalRateLimit
	routerCfg.GlobalRatePeriod = cfg.GlobalRatePeriod
	routerCfg.TrustedIdentityHeader = cfg.TrustedIdentityHeader

	router, err := api.NewRouter(routerCfg, api.Dependencies{
		Store:       database,
		Invitations: inviteService,
		Audit:       recorder,
		Sessions:    sessions,
		Redis:       rdb,
		Limiter:     limiter,
		Metrics:     m,
		Gatherer:    reg,
		Accepting:   shutdownMgr.IsAccepting,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create router")
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// The server stops first so no handler records audit entries after the recorder drains.
	shutdownMgr.Register("http_server", srv.Shutdown)
	shutdownMgr.Register("invitation_sweeper", shutdown.WaitContext(sweeper.Stop))
	shutdownMgr.Register("audit_recorder", shutdown.WaitFunc(recorder.Wait))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
			runErr = err
		}
	}

	if err := shutdownMgr.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info().Msg("server stopped")
	return runErr
}
