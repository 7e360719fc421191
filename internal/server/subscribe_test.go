package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/morezero/autodraw-agent/pkg/commsutil"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/host/hosttest"
)

const subscribeTestPrefix = "server:subscribe_test"

func startSubscription(t *testing.T) (*hosttest.Env, string) {
	t.Helper()
	env := hosttest.Start(t, host.SimulatorParams{Running: true})
	cfg := testConfig()
	pipe, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("%s - NewPipeline: %v", subscribeTestPrefix, err)
	}
	pool, err := pipe.NewWorkers(cfg, WorkersParams{Conn: env.Conn})
	if err != nil {
		t.Fatalf("%s - NewWorkers: %v", subscribeTestPrefix, err)
	}
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	const subject = "test.autodraw.v1.draw"
	sub, err := Subscribe(context.Background(), env.Conn, subject, pipe.Router(pool), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", subscribeTestPrefix, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return env, subject
}

func TestSubscribe_Draw(t *testing.T) {
	env, subject := startSubscription(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := dispatcher.Request{
		ID:     "req-1",
		Method: "draw",
		Params: json.RawMessage(`{"specifications":{"command":"rectangle","position":{"start_point":[1,1],"end_point":[11,5]}}}`),
		Ctx:    &dispatcher.RequestContext{TimeoutMs: 3000},
	}
	var resp struct {
		ID     string                  `json:"id"`
		Ok     bool                    `json:"ok"`
		Result dispatcher.Result       `json:"result"`
		Error  *dispatcher.ErrorDetail `json:"error"`
	}
	if err := commsutil.RequestJSON(ctx, env.Conn, subject, req, &resp); err != nil {
		t.Fatalf("%s - RequestJSON: %v", subscribeTestPrefix, err)
	}
	if !resp.Ok || resp.ID != "req-1" || !resp.Result.Success {
		t.Fatalf("%s - response = %+v", subscribeTestPrefix, resp)
	}
	cmds := env.Simulator.Commands()
	if len(cmds) != 1 || cmds[0] != "_RECTANG 1,1 11,5\n" {
		t.Errorf("%s - commands = %q", subscribeTestPrefix, cmds)
	}
}

func TestSubscribe_Health(t *testing.T) {
	env, subject := startSubscription(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp struct {
		ID     string                  `json:"id"`
		Ok     bool                    `json:"ok"`
		Result dispatcher.HealthResult `json:"result"`
	}
	if err := commsutil.RequestJSON(ctx, env.Conn, subject, dispatcher.Request{Method: "health"}, &resp); err != nil {
		t.Fatalf("%s - RequestJSON: %v", subscribeTestPrefix, err)
	}
	if !resp.Ok || resp.Result.Status != "ok" {
		t.Errorf("%s - response = %+v", subscribeTestPrefix, resp)
	}
	if resp.ID == "" {
		t.Errorf("%s - a request without id should get a generated one", subscribeTestPrefix)
	}
}

func TestSubscribe_InvalidRequest(t *testing.T) {
	env, subject := startSubscription(t)

	msg, err := env.Conn.Request(subject, []byte("{not json"), 5*time.Second)
	if err != nil {
		t.Fatalf("%s - Request: %v", subscribeTestPrefix, err)
	}
	var resp dispatcher.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		t.Fatalf("%s - decode: %v", subscribeTestPrefix, err)
	}
	if resp.Ok || resp.Error == nil || resp.Error.Code != "INVALID_REQUEST" {
		t.Errorf("%s - response = %+v", subscribeTestPrefix, resp)
	}
}
