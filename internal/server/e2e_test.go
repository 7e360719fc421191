package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/db"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/events"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/host/hosttest"
	"github.com/morezero/autodraw-agent/pkg/metrics"
)

const (
	e2eDrawSubject  = "e2e.autodraw.v1.draw"
	e2eEventSubject = "e2e.autodraw.v1.dispatched"
)

// e2eEnv is the agent wired as serve wires it: COMMS subscription, event
// publisher, sqlite journal and two workers against a simulated host.
type e2eEnv struct {
	host    *hosttest.Env
	journal db.Journal

	mu       sync.Mutex
	captured []*events.DispatchCompletedEvent
}

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	env := &e2eEnv{host: hosttest.Start(t, host.SimulatorParams{Running: true})}

	cfg := testConfig()
	cfg.Workers = 2
	pipe, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("e2e_test - NewPipeline: %v", err)
	}

	env.journal, err = db.OpenJournal(context.Background(), db.OpenJournalParams{
		Driver:     db.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "journal.db"),
	})
	if err != nil {
		t.Fatalf("e2e_test - OpenJournal: %v", err)
	}
	t.Cleanup(func() { env.journal.Close() })

	sub, err := env.host.Conn.Subscribe(e2eEventSubject, func(msg *comms.Msg) {
		var ev events.DispatchCompletedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		env.mu.Lock()
		env.captured = append(env.captured, &ev)
		env.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("e2e_test - event subscribe: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })

	dispatchMetrics, err := metrics.NewDispatchMetrics()
	if err != nil {
		t.Fatalf("e2e_test - NewDispatchMetrics: %v", err)
	}
	pool, err := pipe.NewWorkers(cfg, WorkersParams{
		Conn:      env.host.Conn,
		Publisher: events.NewCommsPublisher(env.host.Conn, &events.CommsPublisherOpts{GlobalSubject: e2eEventSubject}),
		Journal:   env.journal,
		Metrics:   dispatchMetrics,
	})
	if err != nil {
		t.Fatalf("e2e_test - NewWorkers: %v", err)
	}
	t.Cleanup(func() { pool.Close(context.Background()) })

	drawSub, err := Subscribe(context.Background(), env.host.Conn, e2eDrawSubject, pipe.Router(pool), 5*time.Second)
	if err != nil {
		t.Fatalf("e2e_test - Subscribe: %v", err)
	}
	t.Cleanup(func() { drawSub.Unsubscribe() })
	return env
}

func (e *e2eEnv) events() []*events.DispatchCompletedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.DispatchCompletedEvent(nil), e.captured...)
}

// sendRequest sends one envelope over COMMS and decodes the response.
func sendRequest(t *testing.T, nc *comms.Conn, req *dispatcher.Request) *dispatcher.Response {
	t.Helper()
	data, err := commsutil.EncodePayload(req)
	if err != nil {
		t.Fatalf("e2e_test - failed to marshal request: %v", err)
	}
	msg, err := nc.Request(e2eDrawSubject, data, 10*time.Second)
	if err != nil {
		t.Fatalf("e2e_test - request failed: %v", err)
	}
	var resp dispatcher.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		t.Fatalf("e2e_test - failed to unmarshal response: %v", err)
	}
	return &resp
}

func TestE2E_DrawJournalsAndPublishes(t *testing.T) {
	env := setupE2E(t)

	resp := sendRequest(t, env.host.Conn, &dispatcher.Request{
		ID:     "e2e-draw",
		Method: "draw",
		Params: json.RawMessage(circleBody),
	})
	if !resp.Ok {
		t.Fatalf("e2e_test - draw failed: %+v", resp.Error)
	}
	if resp.ID != "e2e-draw" {
		t.Errorf("e2e_test - response id = %q, want e2e-draw", resp.ID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(env.events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	evs := env.events()
	if len(evs) != 1 || evs[0].Command != "circle" || !evs[0].Success {
		t.Fatalf("e2e_test - events = %+v", evs)
	}

	entries, err := env.journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("e2e_test - Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Command != "circle" || entries[0].Class != "primitive" || !entries[0].Success {
		t.Errorf("e2e_test - journal = %+v", entries)
	}
}

func TestE2E_InvalidDrawIsJournaledAsFailure(t *testing.T) {
	env := setupE2E(t)

	resp := sendRequest(t, env.host.Conn, &dispatcher.Request{
		ID:     "e2e-invalid",
		Method: "draw",
		Params: json.RawMessage(`{"specifications":{"command":"linear_light"}}`),
	})
	if resp.Ok || resp.Error == nil || resp.Error.Code != dispatcher.CodeInvalidSpecification {
		t.Fatalf("e2e_test - response = %+v", resp)
	}
	if resp.Error.Retryable {
		t.Error("e2e_test - an invalid specification must not be retryable")
	}
	if got := env.host.Simulator.Commands(); len(got) != 0 {
		t.Errorf("e2e_test - invalid draw reached the host: %q", got)
	}

	entries, err := env.journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("e2e_test - Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Success {
		t.Errorf("e2e_test - journal = %+v", entries)
	}
}

func TestE2E_UnknownMethod(t *testing.T) {
	env := setupE2E(t)

	resp := sendRequest(t, env.host.Conn, &dispatcher.Request{ID: "e2e-1", Method: "nonexistent"})
	if resp.Ok {
		t.Error("e2e_test - expected Ok=false for unknown method")
	}
	if resp.Error == nil || resp.Error.Code != "METHOD_NOT_FOUND" {
		t.Errorf("e2e_test - error = %+v, want METHOD_NOT_FOUND", resp.Error)
	}
}

func TestE2E_ConcurrentDraws(t *testing.T) {
	env := setupE2E(t)

	const numRequests = 6
	results := make(chan *dispatcher.Response, numRequests)
	for i := 0; i < numRequests; i++ {
		go func(idx int) {
			params := fmt.Sprintf(`{"specifications":{"command":"circle","dimensions":{"radius":%d},"position":{"center_point":[0,0]}}}`, idx+1)
			results <- sendRequest(t, env.host.Conn, &dispatcher.Request{
				ID:     fmt.Sprintf("concurrent-%d", idx),
				Method: "draw",
				Params: json.RawMessage(params),
			})
		}(i)
	}

	for i := 0; i < numRequests; i++ {
		select {
		case resp := <-results:
			if !resp.Ok {
				t.Errorf("e2e_test - concurrent draw failed: %+v", resp.Error)
			}
		case <-time.After(30 * time.Second):
			t.Fatalf("e2e_test - timeout waiting for concurrent draw %d", i)
		}
	}
	if got := len(env.host.Simulator.Commands()); got != numRequests {
		t.Errorf("e2e_test - host saw %d commands, want %d", got, numRequests)
	}
}
