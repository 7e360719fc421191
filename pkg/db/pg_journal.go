package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgJournalLogPrefix = "db:pg_journal"

// PgJournal stores journal entries in Postgres.
type PgJournal struct {
	pool *pgxpool.Pool
}

// NewPgJournal creates a journal on an open pool. Close closes the pool.
func NewPgJournal(pool *pgxpool.Pool) *PgJournal {
	return &PgJournal{pool: pool}
}

// Record inserts one entry. A zero CreatedAt is set to now.
func (j *PgJournal) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.pool.Exec(ctx, `
		INSERT INTO dispatch_journal
			(id, command, class, success, timed_out, placeholder, reconnects, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Command, e.Class, e.Success, e.TimedOut, e.Placeholder, e.Reconnects, e.Error, e.DurationMs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s - insert %s: %w", pgJournalLogPrefix, e.ID, err)
	}
	return nil
}

// Recent returns the newest entries first.
func (j *PgJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, command, class, success, timed_out, placeholder, reconnects, error, duration_ms, created_at
		FROM dispatch_journal
		ORDER BY created_at DESC
		LIMIT $1`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s - query recent: %w", pgJournalLogPrefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Command, &e.Class, &e.Success, &e.TimedOut, &e.Placeholder,
			&e.Reconnects, &e.Error, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", pgJournalLogPrefix, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (j *PgJournal) Close() error {
	j.pool.Close()
	return nil
}
