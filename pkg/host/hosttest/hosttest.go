// Package hosttest wires an embedded COMMS broker, a simulated host and a
// bridge client together for tests.
package hosttest

import (
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/host"
)

// Env is a running simulated host reachable through a CommsHost.
type Env struct {
	Conn      *comms.Conn
	Simulator *host.Simulator
	Host      *host.CommsHost
	URL       string
}

// Start brings up the environment and registers its teardown with t.Cleanup.
// The Conn and Instance fields of params are filled in.
func Start(t testing.TB, params host.SimulatorParams) *Env {
	t.Helper()

	ns, err := commsutil.StartEmbedded(commsutil.EmbeddedParams{Port: -1})
	if err != nil {
		t.Fatalf("hosttest - StartEmbedded: %v", err)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("hosttest - connect: %v", err)
	}

	if params.Instance == "" {
		params.Instance = "test"
	}
	params.Conn = nc
	sim := host.NewSimulator(params)
	if err := sim.Start(); err != nil {
		nc.Close()
		ns.Shutdown()
		t.Fatalf("hosttest - simulator start: %v", err)
	}

	t.Cleanup(func() {
		_ = sim.Stop()
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return &Env{
		Conn:      nc,
		Simulator: sim,
		Host: host.NewCommsHost(host.NewCommsHostParams{
			Conn:        nc,
			Instance:    params.Instance,
			CallTimeout: 2 * time.Second,
		}),
		URL: ns.ClientURL(),
	}
}
