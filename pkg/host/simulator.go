package host

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
)

const simLogPrefix = "host:simulator"

// Simulator serves the host bridge protocol in-process. It records submitted
// commands and can inject failures, which makes it the host used by tests
// and by the host-sim command.
type Simulator struct {
	nc       *comms.Conn
	instance string
	sub      *comms.Subscription

	mu           sync.Mutex
	running      bool
	version      string
	document     string
	busyFor      time.Duration
	busyUntil    time.Time
	sessions     map[string]bool
	blocks       map[string]bool
	commands     []string
	failAttach   int
	failLaunch   int
	failProbe    int
	failSubmit   int
	attachCalls  int
	launchCalls  int
	releaseCalls int
}

// SimulatorParams holds parameters for NewSimulator.
type SimulatorParams struct {
	Conn     *comms.Conn
	Instance string
	Version  string
	Document string
	// BusyFor is how long the host reports busy after each submit.
	BusyFor time.Duration
	// Running starts the simulated host already running, so Attach succeeds.
	Running bool
	Blocks  []string
}

// NewSimulator creates a simulator. Call Start to serve requests.
func NewSimulator(params SimulatorParams) *Simulator {
	version := params.Version
	if version == "" {
		version = "24.1s (LMS Tech)"
	}
	document := params.Document
	if document == "" {
		document = "Drawing1.dwg"
	}
	s := &Simulator{
		nc:       params.Conn,
		instance: params.Instance,
		running:  params.Running,
		version:  version,
		document: document,
		busyFor:  params.BusyFor,
		sessions: make(map[string]bool),
		blocks:   make(map[string]bool),
	}
	for _, b := range params.Blocks {
		s.blocks[b] = true
	}
	return s
}

// Start subscribes to the bridge subjects of the simulator instance.
func (s *Simulator) Start() error {
	sub, err := s.nc.Subscribe(commsutil.BuildHostWildcard(s.instance), s.handle)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe: %w", simLogPrefix, err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("%s - failed to flush subscription: %w", simLogPrefix, err)
	}
	s.sub = sub
	slog.Info(fmt.Sprintf("%s - Simulated host %q serving on %s", simLogPrefix, s.instance, sub.Subject))
	return nil
}

// Stop unsubscribes the simulator.
func (s *Simulator) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *Simulator) handle(msg *comms.Msg) {
	var req Request
	if len(msg.Data) > 0 {
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			s.respond(msg, Reply{Code: CodeBadRequest, Error: err.Error()})
			return
		}
	}
	op := commsutil.HostOpFromSubject(msg.Subject)
	s.respond(msg, s.apply(op, req))
}

func (s *Simulator) respond(msg *comms.Msg, reply Reply) {
	if err := commsutil.RespondJSON(msg, reply); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", simLogPrefix, err))
	}
}

func (s *Simulator) apply(op string, req Request) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case OpAttach:
		s.attachCalls++
		if consume(&s.failAttach) {
			return Reply{Code: CodeUnavailable, Error: "attach refused"}
		}
		if !s.running {
			return Reply{Code: CodeNotRunning, Error: "no running instance"}
		}
		return s.openSession()
	case OpLaunch:
		s.launchCalls++
		if consume(&s.failLaunch) {
			return Reply{Code: CodeUnavailable, Error: "launch failed"}
		}
		s.running = true
		return s.openSession()
	}

	if !s.running || !s.sessions[req.Session] {
		return Reply{Code: CodeStaleSession, Error: "session is no longer valid"}
	}

	switch op {
	case OpProbe:
		if consume(&s.failProbe) {
			return Reply{Code: CodeUnavailable, Error: "probe failed"}
		}
		return Reply{OK: true, Document: s.document, Version: s.version}
	case OpSubmit:
		if consume(&s.failSubmit) {
			return Reply{Code: CodeRejected, Error: "command line rejected input"}
		}
		s.commands = append(s.commands, req.Payload)
		s.busyUntil = time.Now().Add(s.busyFor)
		return Reply{OK: true}
	case OpBusy:
		return Reply{OK: true, Busy: time.Now().Before(s.busyUntil)}
	case OpBlock:
		return Reply{OK: true, Found: s.blocks[req.Name]}
	case OpBlocks:
		names := make([]string, 0, len(s.blocks))
		for name := range s.blocks {
			names = append(names, name)
		}
		sort.Strings(names)
		return Reply{OK: true, Blocks: names}
	case OpRelease:
		s.releaseCalls++
		delete(s.sessions, req.Session)
		return Reply{OK: true}
	default:
		return Reply{Code: CodeBadRequest, Error: fmt.Sprintf("unknown operation %q", op)}
	}
}

func (s *Simulator) openSession() Reply {
	token := uuid.NewString()
	s.sessions[token] = true
	return Reply{OK: true, Session: token, Document: s.document, Version: s.version}
}

func consume(n *int) bool {
	if *n > 0 {
		*n--
		return true
	}
	return false
}

// Kill stops the simulated host. Every open session becomes stale.
func (s *Simulator) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.sessions = make(map[string]bool)
}

// SetRunning marks the simulated host as running or not.
func (s *Simulator) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	if !running {
		s.sessions = make(map[string]bool)
	}
}

// SetBusyFor changes how long the host stays busy after a submit.
func (s *Simulator) SetBusyFor(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyFor = d
}

// SetVersion changes the reported host version.
func (s *Simulator) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// AddBlock defines a block in the simulated document.
func (s *Simulator) AddBlock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[name] = true
}

// FailNextAttaches makes the next n attach calls fail.
func (s *Simulator) FailNextAttaches(n int) { s.setFailure(&s.failAttach, n) }

// FailNextLaunches makes the next n launch calls fail.
func (s *Simulator) FailNextLaunches(n int) { s.setFailure(&s.failLaunch, n) }

// FailNextProbes makes the next n health probes fail.
func (s *Simulator) FailNextProbes(n int) { s.setFailure(&s.failProbe, n) }

// FailNextSubmits makes the next n submits fail.
func (s *Simulator) FailNextSubmits(n int) { s.setFailure(&s.failSubmit, n) }

func (s *Simulator) setFailure(counter *int, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter = n
}

// Commands returns a copy of every submitted payload in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// ClearCommands forgets the submitted payloads.
func (s *Simulator) ClearCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// SimulatorStats counts lifecycle calls seen by the simulator.
type SimulatorStats struct {
	Attaches int
	Launches int
	Releases int
	Sessions int
}

// Stats returns lifecycle call counts.
func (s *Simulator) Stats() SimulatorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimulatorStats{
		Attaches: s.attachCalls,
		Launches: s.launchCalls,
		Releases: s.releaseCalls,
		Sessions: len(s.sessions),
	}
}
