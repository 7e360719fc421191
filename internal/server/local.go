package server

import (
	"context"
	"fmt"
	"log/slog"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/worker"
)

const localLogPrefix = "server:local"

// Local is a host-connected pipeline without the service surfaces. The CLI
// and the MCP server use it.
type Local struct {
	*Pipeline
	Conn      *comms.Conn
	Pool      *worker.Pool
	Simulator *host.Simulator

	broker *commsserver.Server
}

// OpenLocal builds the pipeline and connects its workers to the host. With
// HOST_SIM_EMBEDDED it first starts an in-process broker and simulated host,
// so nothing outside the process is needed.
func OpenLocal(cfg *config.Config) (*Local, error) {
	if err := cfg.ValidateForCLI(); err != nil {
		return nil, err
	}
	pipe, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	l := &Local{Pipeline: pipe}

	url := cfg.COMMSURL
	if cfg.SimEmbedded {
		l.broker, err = commsutil.StartEmbedded(commsutil.EmbeddedParams{Port: -1})
		if err != nil {
			return nil, err
		}
		url = l.broker.ClientURL()
	}

	l.Conn, err = commsutil.Connect(commsutil.ConnectParams{URL: url, Name: cfg.COMMSName})
	if err != nil {
		l.Close(context.Background())
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", localLogPrefix, err)
	}

	if cfg.SimEmbedded {
		l.Simulator = host.NewSimulator(host.SimulatorParams{
			Conn:     l.Conn,
			Instance: cfg.HostInstance,
			Version:  cfg.SimVersion,
			Running:  true,
			Blocks:   cfg.SimBlockNames(),
		})
		if err := l.Simulator.Start(); err != nil {
			l.Close(context.Background())
			return nil, err
		}
	}

	l.Pool, err = pipe.NewWorkers(cfg, WorkersParams{Conn: l.Conn})
	if err != nil {
		l.Close(context.Background())
		return nil, err
	}
	return l, nil
}

// Router returns the envelope router over the local workers.
func (l *Local) Router() *dispatcher.Router {
	return l.Pipeline.Router(l.Pool)
}

// Close releases the host sessions, the connection and any embedded broker.
func (l *Local) Close(ctx context.Context) {
	if l.Pool != nil {
		if err := l.Pool.Close(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - Closing host sessions: %v", localLogPrefix, err))
		}
	}
	if l.Simulator != nil {
		_ = l.Simulator.Stop()
	}
	if l.Conn != nil {
		l.Conn.Close()
	}
	if l.broker != nil {
		l.broker.Shutdown()
	}
}
