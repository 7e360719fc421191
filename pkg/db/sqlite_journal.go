package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteJournalLogPrefix = "db:sqlite_journal"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dispatch_journal (
  id           TEXT PRIMARY KEY,
  command      TEXT NOT NULL,
  class        TEXT NOT NULL DEFAULT '',
  success      INTEGER NOT NULL,
  timed_out    INTEGER NOT NULL DEFAULT 0,
  placeholder  INTEGER NOT NULL DEFAULT 0,
  reconnects   INTEGER NOT NULL DEFAULT 0,
  error        TEXT NOT NULL DEFAULT '',
  duration_ms  INTEGER NOT NULL DEFAULT 0,
  created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dispatch_journal_created_at
ON dispatch_journal(created_at DESC);
`

// SQLiteJournal stores journal entries in a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (or creates) the journal file at path and applies the schema.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%s - failed to create directory: %w", sqliteJournalLogPrefix, err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open database: %w", sqliteJournalLogPrefix, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - failed to apply schema: %w", sqliteJournalLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Journal opened at %s", sqliteJournalLogPrefix, path))
	return &SQLiteJournal{db: db}, nil
}

// Record inserts one entry. A zero CreatedAt is set to now.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dispatch_journal
			(id, command, class, success, timed_out, placeholder, reconnects, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Command, e.Class, boolToInt(e.Success), boolToInt(e.TimedOut), boolToInt(e.Placeholder),
		e.Reconnects, e.Error, e.DurationMs, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("%s - insert %s: %w", sqliteJournalLogPrefix, e.ID, err)
	}
	return nil
}

// Recent returns the newest entries first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, command, class, success, timed_out, placeholder, reconnects, error, duration_ms, created_at
		FROM dispatch_journal
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s - query recent: %w", sqliteJournalLogPrefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                              Entry
			success, timedOut, placeholder int
			createdAt                      int64
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Class, &success, &timedOut, &placeholder,
			&e.Reconnects, &e.Error, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", sqliteJournalLogPrefix, err)
		}
		e.Success = success != 0
		e.TimedOut = timedOut != 0
		e.Placeholder = placeholder != 0
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear deletes every entry.
func (j *SQLiteJournal) Clear(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM dispatch_journal`); err != nil {
		return fmt.Errorf("%s - clear: %w", sqliteJournalLogPrefix, err)
	}
	return nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
