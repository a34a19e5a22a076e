// Package db provides PostgreSQL persistence for tenants, memberships, invitations and audit logs.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested row does not exist or is inactive.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// Postgres error codes the stores translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// applicationName tags every connection in pg_stat_activity.
const applicationName = "tenancy"

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout aborts any single statement running longer. Zero leaves the server default.
	StatementTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		MaxConns:         25,
		MinConns:         5,
		MaxConnLifetime:  time.Hour,
		MaxConnIdleTime:  30 * time.Minute,
		StatementTimeout: 30 * time.Second,
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so store helpers
// can run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a pgxpool.Pool with the tenancy stores.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a new database connection pool.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	if cfg.StatementTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	db := &DB{
		Pool:   pool,
		logger: logger.With().Str("component", "db").Logger(),
	}

	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.logger.Info().
		Int32("max_conns", cfg.MaxConns).
		Dur("statement_timeout", cfg.StatementTimeout).
		Msg("database connection pool established")
	return db, nil
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
	db.logger.Info().Msg("database connection pool closed")
}

// Health returns pool statistics for the readiness endpoint.
func (db *DB) Health() map[string]any {
	stats := db.Pool.Stat()
	return map[string]any{
		"total_conns":      stats.TotalConns(),
		"acquired_conns":   stats.AcquiredConns(),
		"idle_conns":       stats.IdleConns(),
		"max_conns":        stats.MaxConns(),
		"acquire_duration": stats.AcquireDuration().String(),
	}
}

// ExecTx runs fn in a transaction that commits when fn returns nil and rolls
// back otherwise. fn's error is returned unwrapped so callers can match
// ErrNotFound and ErrDuplicate.
func (db *DB) ExecTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.Pool, fn)
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isForeignKeyViolation reports whether err references a missing parent row.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

