// Package db provides the dispatch journal: a pgx pool with migrations,
// a SQLite store and a no-op implementation.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// Journal writes are small and infrequent.
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies SQL migration files in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for _, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration failed: %w", logPrefix, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus reports whether migrations have been applied (by checking for the journal table).
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'dispatch_journal')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	source := migrationPath
	if source == "" {
		source = "embedded migrations"
	}
	if exists {
		var rows int64
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM dispatch_journal`).Scan(&rows); err != nil {
			return fmt.Errorf("%s - failed to count journal rows: %w", statusLogPrefix, err)
		}
		fmt.Printf("Migration status: applied (dispatch_journal has %d rows, %d migration files in %s)\n", rows, len(files), source)
	} else {
		fmt.Printf("Migration status: not applied (run 'autodraw-agent migrate up'). %d migration files in %s\n", len(files), source)
	}
	return nil
}

// MigrationDown drops the journal schema. Journal rows are lost.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool) error {
	const downLogPrefix = "db:MigrationDown"
	if pool == nil {
		return fmt.Errorf("%s - no database pool", downLogPrefix)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS dispatch_journal`); err != nil {
		return fmt.Errorf("%s - drop failed: %w", downLogPrefix, err)
	}
	fmt.Println("Migration down: dispatch_journal dropped.")
	return nil
}
