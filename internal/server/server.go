// Package server orchestrates all components: COMMS client, journal, worker
// sessions, the draw subscription and the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/db"
	"github.com/morezero/autodraw-agent/pkg/events"
	"github.com/morezero/autodraw-agent/pkg/metrics"
)

const logPrefix = "server:server"

// Run starts the agent, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.COMMSName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTELStdout {
		shutdownTracing, err := metrics.SetupStdoutTracing()
		if err != nil {
			return fmt.Errorf("%s - failed to set up tracing: %w", logPrefix, err)
		}
		defer shutdownTracing(context.Background())
	}

	// Step 1: Load the catalog and build the host-independent stages
	pipe, err := NewPipeline(cfg)
	if err != nil {
		return err
	}

	// Step 2: Connect to COMMS
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	// Step 3: Open the dispatch journal
	journal, err := db.OpenJournal(ctx, cfg.JournalParams())
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to open journal: %w", logPrefix, err)
	}

	// Step 4: Build the workers, one host session each
	dispatchMetrics, err := metrics.NewDispatchMetrics()
	if err != nil {
		journal.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to create metrics: %w", logPrefix, err)
	}
	pool, err := pipe.NewWorkers(cfg, WorkersParams{
		Conn:      nc,
		Publisher: events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.EventSubject}),
		Journal:   journal,
		Metrics:   dispatchMetrics,
	})
	if err != nil {
		journal.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to start workers: %w", logPrefix, err)
	}

	// Step 5: Serve the draw subject
	sub, err := Subscribe(ctx, nc, cfg.DrawSubject, pipe.Router(pool), cfg.RequestTimeout)
	if err != nil {
		pool.Close(ctx)
		journal.Close()
		nc.Close()
		return err
	}

	// Step 6: Start the HTTP API
	var tokens *TokenManager
	if cfg.APIJWTSecret != "" {
		tokens, err = NewTokenManager(cfg.APIJWTSecret)
		if err != nil {
			return err
		}
	}
	api, err := NewAPI(APIParams{
		Pipeline:           pipe,
		Executor:           pool,
		BatchDelay:         cfg.BatchDelay,
		RequestTimeout:     cfg.RequestTimeout,
		HealthCheckTimeout: cfg.HealthCheckTimeout,
		Ready:              connReady(nc),
		Tokens:             tokens,
	})
	if err != nil {
		sub.Unsubscribe()
		pool.Close(ctx)
		journal.Close()
		nc.Close()
		return err
	}

	httpAddr := cfg.HTTPListenAddr()
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP API listening on %s", logPrefix, httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Agent is ready (%d workers, host %q)", logPrefix, pool.Size(), cfg.HostInstance))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
	defer shutdownCancel()

	sub.Unsubscribe()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	if err := pool.Close(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - Closing host sessions: %v", logPrefix, err))
	}
	nc.Drain()
	if err := journal.Close(); err != nil {
		slog.Warn(fmt.Sprintf("%s - Closing journal: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// connReady reports whether the COMMS connection is usable.
func connReady(nc *comms.Conn) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("%s - COMMS connection is %s", logPrefix, nc.Status())
		}
		return nc.FlushWithContext(ctx)
	}
}
