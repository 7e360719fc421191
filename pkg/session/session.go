// Package session keeps one handle to the drawing host alive across
// dispatches. It attaches or launches on first use, health-checks on every
// later use and reconnects exactly once when the handle has gone stale.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/semver"
)

const logPrefix = "session:session"

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session owns the host and document handles of one worker.
// It is not meant to be shared between workers.
type Session struct {
	host         host.Host
	versionRange string
	onReconnect  func()

	// mu guards the fields below. sendMu serializes SendAndWait.
	mu          sync.Mutex
	sendMu      sync.Mutex
	state       State
	doc         host.Document
	reconnects  int
	hostVersion string
}

// NewParams holds parameters for New.
type NewParams struct {
	Host host.Host
	// HostVersionRange, when set, must be satisfied by the host version.
	HostVersionRange string
	// OnReconnect is called after every successful reconnect.
	OnReconnect func()
}

// New creates an uninitialized session.
func New(params NewParams) *Session {
	return &Session{
		host:         params.Host,
		versionRange: params.HostVersionRange,
		onReconnect:  params.OnReconnect,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconnects returns how many times a stale handle was replaced.
func (s *Session) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// HostVersion returns the version reported by the host at connect time.
func (s *Session) HostVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostVersion
}

// Acquire returns a healthy document handle.
func (s *Session) Acquire(ctx context.Context) (host.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return nil, &Error{Code: CodeSessionClosed, Message: "session is closed", Err: ErrClosed}

	case StateUninitialized:
		doc, err := s.connect(ctx)
		if err != nil {
			return nil, err
		}
		s.doc = doc
		s.state = StateConnected
		return doc, nil

	case StateConnected:
		err := s.healthCheck(ctx)
		if err == nil {
			return s.doc, nil
		}
		slog.Warn(fmt.Sprintf("%s - Health check failed, reconnecting: %v", logPrefix, err))
		s.state = StateBroken
	}

	// Broken: one teardown and one reconnect attempt, never a loop.
	s.teardown(ctx)
	doc, err := s.connect(ctx)
	if err != nil {
		return nil, &Error{Code: CodeSessionExhausted, Message: "reconnect after failed health check did not succeed", Err: err}
	}
	s.doc = doc
	s.state = StateConnected
	s.reconnects++
	slog.Info(fmt.Sprintf("%s - Reconnected to host (reconnects=%d)", logPrefix, s.reconnects))
	if s.onReconnect != nil {
		s.onReconnect()
	}
	return doc, nil
}

// HealthCheck probes the current document with a cheap property read.
func (s *Session) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthCheck(ctx)
}

func (s *Session) healthCheck(ctx context.Context) error {
	if s.doc == nil {
		return fmt.Errorf("%s - no document handle", logPrefix)
	}
	if _, err := s.doc.Name(ctx); err != nil {
		return fmt.Errorf("%s - document probe failed: %w", logPrefix, err)
	}
	return nil
}

// connect attaches to a running host, or launches one.
func (s *Session) connect(ctx context.Context) (host.Document, error) {
	doc, err := s.host.Attach(ctx)
	if err != nil {
		slog.Info(fmt.Sprintf("%s - Attach failed (%v), launching host", logPrefix, err))
		doc, err = s.host.Launch(ctx)
		if err != nil {
			return nil, &Error{Code: CodeSessionUnavailable, Message: "could not attach to or launch the host", Err: err}
		}
	}

	version, err := doc.Version(ctx)
	if err != nil {
		s.release(ctx, doc)
		return nil, &Error{Code: CodeSessionUnavailable, Message: "could not read host version", Err: err}
	}
	if err := semver.CheckCompatibility("host", version, s.versionRange); err != nil {
		s.release(ctx, doc)
		return nil, &Error{Code: CodeHostIncompatible, Message: "host version is not supported", Err: err}
	}
	s.hostVersion = version

	name, _ := doc.Name(ctx)
	slog.Info(fmt.Sprintf("%s - Connected to host %s, document %s", logPrefix, version, name))
	return doc, nil
}

func (s *Session) teardown(ctx context.Context) {
	if s.doc != nil {
		s.release(ctx, s.doc)
	}
	s.doc = nil
	s.state = StateUninitialized
}

func (s *Session) release(ctx context.Context, doc host.Document) {
	if err := doc.Release(ctx); err != nil {
		slog.Debug(fmt.Sprintf("%s - Release of stale handle failed: %v", logPrefix, err))
	}
}

// Close releases the handles. The session is unusable afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.teardown(ctx)
	s.state = StateClosed
	return nil
}

// WaitOptions controls SendAndWait polling.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Default wait settings.
const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultTimeout      = 30 * time.Second
)

func (o WaitOptions) withDefaults() WaitOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// WaitOutcome describes how SendAndWait finished.
type WaitOutcome struct {
	TimedOut bool
	Polls    int
	Elapsed  time.Duration
}

// SendAndWait submits payload and polls until the host is idle. Sends are
// serialized. A timeout, a cancelled ctx or a failed poll only sets TimedOut.
func (s *Session) SendAndWait(ctx context.Context, payload string, opts WaitOptions) (WaitOutcome, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	opts = opts.withDefaults()
	doc, err := s.Acquire(ctx)
	if err != nil {
		return WaitOutcome{}, err
	}
	return sendAndWait(ctx, doc, payload, opts)
}

// SendOn submits payload to an already acquired document and waits like
// SendAndWait. It is used for follow-up commands of one dispatch.
func (s *Session) SendOn(ctx context.Context, doc host.Document, payload string, opts WaitOptions) (WaitOutcome, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return sendAndWait(ctx, doc, payload, opts.withDefaults())
}

func sendAndWait(ctx context.Context, doc host.Document, payload string, opts WaitOptions) (WaitOutcome, error) {
	start := time.Now()
	if err := doc.Submit(ctx, payload); err != nil {
		return WaitOutcome{}, &TransportError{Err: err}
	}

	out := WaitOutcome{}
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		busy, err := doc.Busy(ctx)
		out.Polls++
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Busy poll failed, treating command as timed out: %v", logPrefix, err))
			out.TimedOut = true
			break
		}
		if !busy {
			break
		}
		select {
		case <-ctx.Done():
			slog.Warn(fmt.Sprintf("%s - Wait cancelled while host was busy: %v", logPrefix, ctx.Err()))
			out.TimedOut = true
		case <-deadline.C:
			slog.Warn(fmt.Sprintf("%s - Command still running after %s", logPrefix, opts.Timeout))
			out.TimedOut = true
		case <-ticker.C:
			continue
		}
		break
	}

	out.Elapsed = time.Since(start)
	return out, nil
}
