package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
)

const embeddedLogPrefix = "commsutil:embedded"

// EmbeddedParams holds parameters for StartEmbedded. Port -1 picks a free port.
type EmbeddedParams struct {
	Host         string
	Port         int
	ReadyTimeout time.Duration
}

// StartEmbedded starts an in-process COMMS broker and waits until it accepts
// connections. Callers own the returned server and must Shutdown it.
func StartEmbedded(params EmbeddedParams) (*commsserver.Server, error) {
	host := params.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ready := params.ReadyTimeout
	if ready <= 0 {
		ready = 10 * time.Second
	}

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   host,
		Port:   params.Port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create COMMS server: %w", embeddedLogPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(ready) {
		ns.Shutdown()
		return nil, fmt.Errorf("%s - COMMS server not ready after %s", embeddedLogPrefix, ready)
	}

	slog.Info(fmt.Sprintf("%s - Embedded COMMS listening on %s", embeddedLogPrefix, ns.ClientURL()))
	return ns, nil
}
