package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Journal drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const journalLogPrefix = "db:journal"

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Entry is one dispatch journal row.
type Entry struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	Class       string    `json:"class"`
	Success     bool      `json:"success"`
	TimedOut    bool      `json:"timedOut"`
	Placeholder bool      `json:"placeholder"`
	Reconnects  int       `json:"reconnects"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Journal records dispatch outcomes.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// NopJournal discards every entry.
type NopJournal struct{}

// Record does nothing.
func (NopJournal) Record(context.Context, Entry) error { return nil }

// Recent returns no entries.
func (NopJournal) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Close does nothing.
func (NopJournal) Close() error { return nil }

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// OpenJournalParams holds parameters for OpenJournal.
type OpenJournalParams struct {
	Driver        string
	DatabaseURL   string
	SQLitePath    string
	RunMigrations bool
	MigrationPath string
}

// OpenJournal opens the journal selected by Driver. "" and "none" give a NopJournal.
func OpenJournal(ctx context.Context, params OpenJournalParams) (Journal, error) {
	switch strings.ToLower(strings.TrimSpace(params.Driver)) {
	case "", DriverNone:
		return NopJournal{}, nil
	case DriverSQLite:
		return OpenSQLiteJournal(params.SQLitePath)
	case DriverPostgres:
		pool, err := NewPool(ctx, params.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if params.RunMigrations {
			files, err := LoadMigrationFiles(params.MigrationPath)
			if err != nil {
				pool.Close()
				return nil, err
			}
			if err := RunMigrations(ctx, pool, files); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPgJournal(pool), nil
	}
	return nil, fmt.Errorf("%s - unknown journal driver %q", journalLogPrefix, params.Driver)
}
