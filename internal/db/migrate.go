package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID is the advisory lock key held while migrating.
const migrationLockID int64 = 7364827164

// Migration is one embedded schema change, named NNN_description.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns all embedded migrations sorted by version.
func GetMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return nil, fmt.Errorf("parse migration filename %s: %w", entry.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingAfter returns the migrations newer than version.
func pendingAfter(migrations []Migration, version int) []Migration {
	i := sort.Search(len(migrations), func(i int) bool { return migrations[i].Version > version })
	return migrations[i:]
}

// PendingMigrations returns the embedded migrations not yet applied.
func (db *DB) PendingMigrations(ctx context.Context) ([]Migration, error) {
	migrations, err := GetMigrations()
	if err != nil {
		return nil, err
	}
	current, err := db.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return pendingAfter(migrations, current), nil
}

// Migrate applies pending migrations, each in its own transaction. A session
// advisory lock serializes replicas that start at the same time.
func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migration lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	// Read the version only after taking the lock so a replica that waited
	// sees what the winner applied.
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		db.logger.Debug().Msg("schema up to date")
		return nil
	}

	for _, m := range pending {
		db.logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("execute migration SQL: %w", err)
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	db.logger.Info().Int("applied", len(pending)).Msg("migrations complete")
	return nil
}

// CurrentVersion returns the highest applied migration, or 0 on a fresh database.
func (db *DB) CurrentVersion(ctx context.Context) (int, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, "SELECT to_regclass('schema_migrations') IS NOT NULL").Scan(&exists); err != nil {
		return 0, fmt.Errorf("check schema_migrations: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	if err := db.Pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return version, nil
}
