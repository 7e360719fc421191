// Package main is the entrypoint for the autodraw agent service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/internal/mcp"
	"github.com/morezero/autodraw-agent/internal/server"
	"github.com/morezero/autodraw-agent/pkg/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage: autodraw-agent [command]
       autodraw-agent serve              Start the agent (COMMS draw subject, HTTP API).
       autodraw-agent mcp                Serve the drawing tools over MCP stdio.
       autodraw-agent host-sim           Run a simulated host (optionally with an embedded broker).
       autodraw-agent migrate up         Create the dispatch journal schema.
       autodraw-agent migrate down       Drop the dispatch journal schema.
       autodraw-agent migrate status     Show migration status.
       autodraw-agent ensure-db [name]   Create database if missing (default name: autodraw_test). Uses DATABASE_URL host/user.
       autodraw-agent journal [n]        Print the n most recent dispatch journal entries (default 20).
       autodraw-agent clear              Truncate the dispatch journal; schema is preserved.

Commands:
  serve           (default) Start the agent.
  mcp             MCP server on stdin/stdout; logs go to stderr.
  host-sim        Simulated host on HOST_INSTANCE. HOST_SIM_EMBEDDED=true also runs the broker on HOST_SIM_PORT.
  migrate up      Run journal migrations only.
  migrate down    Drop the journal table.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. autodraw_test) on same host as DATABASE_URL; then run tests with that URL.
  journal [n]     Recent dispatch outcomes from JOURNAL_DRIVER (sqlite or postgres).
  clear           Truncate journal data.

Environment: COMMS_URL, HOST_INSTANCE, DRAW_SUBJECT, JOURNAL_DRIVER, DATABASE_URL, SQLITE_PATH, HTTP_PORT, LLM_API_KEY. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("autodraw-agent migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("autodraw-agent migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("autodraw-agent migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("autodraw-agent migrate down: %v", err)
			}
		default:
			log.Fatalf("autodraw-agent migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "ensure-db":
		dbName := "autodraw_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("autodraw-agent ensure-db: %v", err)
		}
		return
	case "journal":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				log.Fatalf("autodraw-agent journal: %q is not a positive count", args[1])
			}
			limit = n
		}
		if err := runJournal(limit); err != nil {
			log.Fatalf("autodraw-agent journal: %v", err)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("autodraw-agent clear: %v", err)
		}
		return
	case "host-sim":
		if err := server.RunHostSim(); err != nil {
			log.Fatalf("autodraw-agent host-sim: %v", err)
		}
		return
	case "mcp":
		if err := runMCP(); err != nil {
			log.Fatalf("autodraw-agent mcp: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("autodraw-agent: %v", err)
	}
}

func runMCP() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLoggingTo(cfg.LogLevel, os.Stderr)

	local, err := server.OpenLocal(cfg)
	if err != nil {
		return err
	}
	defer local.Close(context.Background())

	return mcp.Run(local.Router(), version)
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationDown(ctx, pool)
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runJournal(limit int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	params := cfg.JournalParams()
	if params.Driver == db.DriverNone {
		return fmt.Errorf("JOURNAL_DRIVER is not set; nothing is journaled")
	}
	ctx := context.Background()
	journal, err := db.OpenJournal(ctx, params)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	entries, err := journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	if cfg.JournalParams().Driver == db.DriverSQLite {
		journal, err := db.OpenSQLiteJournal(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		return journal.Clear(ctx)
	}

	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}
