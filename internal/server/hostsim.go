package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/host"
)

const hostSimLogPrefix = "server:hostsim"

// RunHostSim serves a simulated host on HOST_INSTANCE until a shutdown
// signal. With HOST_SIM_EMBEDDED it also runs the broker on HOST_SIM_PORT.
func RunHostSim() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", hostSimLogPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	url := cfg.COMMSURL
	if cfg.SimEmbedded {
		broker, err := commsutil.StartEmbedded(commsutil.EmbeddedParams{Host: "0.0.0.0", Port: cfg.SimPort})
		if err != nil {
			return err
		}
		defer broker.Shutdown()
		url = broker.ClientURL()
	}

	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: url, Name: cfg.COMMSName + "-host-sim"})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", hostSimLogPrefix, err)
	}
	defer nc.Close()

	sim := host.NewSimulator(host.SimulatorParams{
		Conn:     nc,
		Instance: cfg.HostInstance,
		Version:  cfg.SimVersion,
		Running:  true,
		Blocks:   cfg.SimBlockNames(),
	})
	if err := sim.Start(); err != nil {
		return err
	}
	defer sim.Stop()

	slog.Info(fmt.Sprintf("%s - Simulated host %q ready on %s", hostSimLogPrefix, cfg.HostInstance, url))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	stats := sim.Stats()
	slog.Info(fmt.Sprintf("%s - Received signal %s, stopping (%+v)", hostSimLogPrefix, sig, stats))
	return nil
}
