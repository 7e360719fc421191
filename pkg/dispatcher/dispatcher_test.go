package dispatcher

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/db"
	"github.com/morezero/autodraw-agent/pkg/events"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/host/hosttest"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const testPrefix = "dispatcher:dispatcher_test"

var testWait = session.WaitOptions{PollInterval: 20 * time.Millisecond, Timeout: time.Second}

func newTestDispatcher(t *testing.T, params host.SimulatorParams) (*Dispatcher, *hosttest.Env) {
	t.Helper()
	env := hosttest.Start(t, params)
	d := NewDispatcher(NewDispatcherParams{
		Registry: capability.MustDefaultRegistry(),
		Session:  session.New(session.NewParams{Host: env.Host}),
		Options:  Options{Wait: testWait},
	})
	return d, env
}

func hasWarning(res *Result, substr string) bool {
	for _, w := range res.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func scenarioA() *spec.Specification {
	return &spec.Specification{
		Command:        "linear_light",
		LightingSystem: "ls",
		Dimensions:     spec.Dimensions{spec.DimLength: 10, spec.DimWidth: 4},
		Position:       spec.Position{StartPoint: spec.Pt(5, 5, 0), EndPoint: spec.Pt(15, 5, 0)},
		Attributes:     spec.Values{"wattage": 50.0, "color_temperature": "4000k"},
	}
}

func TestDispatch_LinearLight(t *testing.T) {
	env := hosttest.Start(t, host.SimulatorParams{Running: true})
	journal, err := db.OpenSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("%s - OpenSQLiteJournal: %v", testPrefix, err)
	}
	defer journal.Close()

	var mu sync.Mutex
	var published []*events.DispatchCompletedEvent
	d := NewDispatcher(NewDispatcherParams{
		Registry: capability.MustDefaultRegistry(),
		Session:  session.New(session.NewParams{Host: env.Host}),
		Publisher: events.NewCallbackPublisher(func(_ context.Context, e *events.DispatchCompletedEvent) error {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, e)
			return nil
		}),
		Journal: journal,
		Options: Options{Wait: testWait},
	})

	s := scenarioA()
	s.Extras = spec.Values{"emergency_backup": true}
	res, err := d.Dispatch(context.Background(), s)
	if err != nil {
		t.Fatalf("%s - Dispatch: %v", testPrefix, err)
	}
	if !res.Success {
		t.Fatalf("%s - dispatch failed: %s", testPrefix, res.Error)
	}
	if res.ID == "" || res.Timestamp == "" {
		t.Errorf("%s - result missing id or timestamp: %+v", testPrefix, res)
	}
	if !strings.Contains(res.Summary, "- Wattage: 50W") || !strings.Contains(res.Summary, "4000k") {
		t.Errorf("%s - summary = %q", testPrefix, res.Summary)
	}

	cmds := env.Simulator.Commands()
	if len(cmds) != 2 {
		t.Fatalf("%s - commands = %q, want primary and _ADDEM", testPrefix, cmds)
	}
	if !strings.HasPrefix(cmds[0], "_LSAUTO 5,5 15,5 10 4  50 4000 clear ceiling_mount 1") {
		t.Errorf("%s - primary = %q", testPrefix, cmds[0])
	}
	if cmds[1] != "_ADDEM\n" {
		t.Errorf("%s - extra = %q", testPrefix, cmds[1])
	}

	mu.Lock()
	if len(published) != 1 || !published[0].Success || published[0].Class != "fixture" {
		t.Errorf("%s - published = %+v", testPrefix, published)
	}
	mu.Unlock()

	entries, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("%s - Recent: %v", testPrefix, err)
	}
	if len(entries) != 1 || entries[0].ID != res.ID || !entries[0].Success {
		t.Errorf("%s - journal entries = %+v", testPrefix, entries)
	}
}

func TestDispatch_UnknownCommandNeverTouchesHost(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	res, err := d.Dispatch(context.Background(), &spec.Specification{Command: "teleport"})
	if err != nil {
		t.Fatalf("%s - Dispatch: %v", testPrefix, err)
	}
	if res.Success || res.ErrorCode != CodeInvalidSpecification {
		t.Fatalf("%s - result = %+v, want INVALID_SPECIFICATION", testPrefix, res)
	}
	if !strings.HasPrefix(res.Error, "invalid specification: ") {
		t.Errorf("%s - error = %q", testPrefix, res.Error)
	}
	if stats := env.Simulator.Stats(); stats.Attaches != 0 || stats.Launches != 0 {
		t.Errorf("%s - host was contacted: %+v", testPrefix, stats)
	}
	if len(env.Simulator.Commands()) != 0 {
		t.Errorf("%s - commands sent for invalid request", testPrefix)
	}
}

func TestDispatch_InvalidValue(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	s := &spec.Specification{
		Command:    "circle",
		Dimensions: spec.Dimensions{spec.DimRadius: math.Inf(1)},
		Position:   spec.Position{CenterPoint: spec.Pt(0, 0, 0)},
	}
	res, _ := d.Dispatch(context.Background(), s)
	if res.Success || res.ErrorCode != CodeInvalidSpecification {
		t.Fatalf("%s - result = %+v", testPrefix, res)
	}
	if len(env.Simulator.Commands()) != 0 {
		t.Errorf("%s - commands sent for invalid request", testPrefix)
	}
}

func TestDispatch_NonFiniteStringsNeverReachHost(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	var s spec.Specification
	raw := `{"command":"linear_light","lighting_system":"ls","attributes":{"wattage":"Infinity","quantity":"NaN"}}`
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("%s - unmarshal: %v", testPrefix, err)
	}
	res, err := d.Dispatch(context.Background(), &s)
	if err != nil {
		t.Fatalf("%s - Dispatch: %v", testPrefix, err)
	}
	if res.Success || res.ErrorCode != CodeInvalidSpecification {
		t.Fatalf("%s - result = %+v, want INVALID_SPECIFICATION", testPrefix, res)
	}
	if !strings.Contains(res.Error, spec.CodeNonFiniteValue) {
		t.Errorf("%s - error = %q, want a non-finite reason", testPrefix, res.Error)
	}
	if len(env.Simulator.Commands()) != 0 {
		t.Errorf("%s - commands sent for invalid request: %q", testPrefix, env.Simulator.Commands())
	}
	if _, err := json.Marshal(res); err != nil {
		t.Errorf("%s - result must stay encodable: %v", testPrefix, err)
	}
}

func TestPayloadBuilder_IgnoresNonFiniteString(t *testing.T) {
	entry, err := capability.MustDefaultRegistry().Lookup("linear_light")
	if err != nil {
		t.Fatalf("%s - Lookup: %v", testPrefix, err)
	}
	s := &spec.Specification{Command: "linear_light", LightingSystem: "ls", Attributes: spec.Values{"quantity": "NaN"}}
	p := NewPayloadBuilder(InvocationMacro).Build(entry, s)
	if strings.Contains(p.Text, "NaN") {
		t.Errorf("%s - payload carries NaN: %q", testPrefix, p.Text)
	}
	if !hasPayloadWarning(p, "attributes.quantity") {
		t.Errorf("%s - warnings = %v, want a quantity warning", testPrefix, p.Warnings)
	}
}

func hasPayloadWarning(p *Payload, substr string) bool {
	for _, w := range p.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestDispatch_FixtureDefaultsFromLightingSystem(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	in := &spec.Specification{Command: "rush_light", LightingSystem: "rush"}
	res, err := d.Dispatch(context.Background(), in)
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	echo := res.Specification
	if echo.Dimensions[spec.DimLength] != 4 || echo.Dimensions[spec.DimWidth] != 6 || echo.Attributes["wattage"] != 75.0 {
		t.Errorf("%s - echo = %+v", testPrefix, echo)
	}
	if in.Dimensions != nil || in.Attributes != nil {
		t.Errorf("%s - caller spec was mutated: %+v", testPrefix, in)
	}
	if cmds := env.Simulator.Commands(); !strings.HasPrefix(cmds[0], "_RushAuto   4 6  75 4000") {
		t.Errorf("%s - primary = %q", testPrefix, cmds[0])
	}
}

func TestDispatch_ClampEchoed(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	in := scenarioA()
	in.Attributes["wattage"] = 5000.0
	res, err := d.Dispatch(context.Background(), in)
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	if res.Specification.Attributes["wattage"] != 1000.0 {
		t.Errorf("%s - echo wattage = %v, want 1000", testPrefix, res.Specification.Attributes["wattage"])
	}
	if in.Attributes["wattage"] != 5000.0 {
		t.Errorf("%s - caller spec was mutated", testPrefix)
	}
	if !hasWarning(res, "clamped from 5000 to 1000") {
		t.Errorf("%s - warnings = %v", testPrefix, res.Warnings)
	}
	if !strings.Contains(env.Simulator.Commands()[0], " 1000 ") {
		t.Errorf("%s - payload = %q", testPrefix, env.Simulator.Commands()[0])
	}
}

func TestDispatch_RectangleFromDimensions(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	res, err := d.Dispatch(context.Background(), &spec.Specification{
		Command:    "rectangle",
		Dimensions: spec.Dimensions{spec.DimLength: 10, spec.DimWidth: 4},
		Position:   spec.Position{StartPoint: spec.Pt(1, 1, 0)},
	})
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	if got := env.Simulator.Commands()[0]; got != "_RECTANG 1,1 11,5\n" {
		t.Errorf("%s - payload = %q", testPrefix, got)
	}
}

func TestDispatch_Block(t *testing.T) {
	blockSpec := func() *spec.Specification {
		return &spec.Specification{
			Command:    "block",
			Attributes: spec.Values{"block_name": "EXIT_SIGN"},
			Position:   spec.Position{InsertionPoint: spec.Pt(10, 10, 0)},
			Extras:     spec.Values{"scale_factor": 4.0},
		}
	}

	t.Run("present block is inserted", func(t *testing.T) {
		d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})
		env.Simulator.AddBlock("EXIT_SIGN")

		res, err := d.Dispatch(context.Background(), blockSpec())
		if err != nil || !res.Success || res.Placeholder {
			t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
		}
		if got := env.Simulator.Commands(); len(got) != 1 || got[0] != "_INSERT EXIT_SIGN 10,10 4 0\n" {
			t.Errorf("%s - commands = %q", testPrefix, got)
		}
	})

	t.Run("missing block draws placeholder", func(t *testing.T) {
		d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

		res, err := d.Dispatch(context.Background(), blockSpec())
		if err != nil || !res.Success {
			t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
		}
		if !res.Placeholder || !hasWarning(res, `block "EXIT_SIGN" not found`) {
			t.Errorf("%s - result = %+v", testPrefix, res)
		}
		want := []string{"_RECTANG 8,8 12,12\n", "_TEXT 8,8 0.5 0 EXIT_SIGN\n"}
		got := env.Simulator.Commands()
		if len(got) != len(want) {
			t.Fatalf("%s - commands = %q", testPrefix, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s - command %d = %q, want %q", testPrefix, i, got[i], want[i])
			}
		}
	})
}

func TestDispatch_ReconnectAfterHostRestart(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})
	ctx := context.Background()

	if res, err := d.Dispatch(ctx, scenarioA()); err != nil || !res.Success {
		t.Fatalf("%s - first Dispatch: %v %+v", testPrefix, err, res)
	}
	env.Simulator.Kill()

	res, err := d.Dispatch(ctx, &spec.Specification{Command: "rotate", Extras: spec.Values{"angle": 45.0}})
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch after restart: %v %+v", testPrefix, err, res)
	}
	if d.Session().Reconnects() != 1 {
		t.Errorf("%s - reconnects = %d, want 1", testPrefix, d.Session().Reconnects())
	}
	if !hasWarning(res, "reconnected") || !hasWarning(res, "runs on the last object") {
		t.Errorf("%s - warnings = %v", testPrefix, res.Warnings)
	}
	cmds := env.Simulator.Commands()
	if cmds[len(cmds)-1] != "_ROTATE _L  0,0 45\n" {
		t.Errorf("%s - last command = %q", testPrefix, cmds[len(cmds)-1])
	}
}

func TestDispatch_SessionExhausted(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, scenarioA()); err != nil {
		t.Fatalf("%s - first Dispatch: %v", testPrefix, err)
	}
	env.Simulator.Kill()
	env.Simulator.FailNextLaunches(1)

	res, err := d.Dispatch(ctx, scenarioA())
	if session.CodeOf(err) != session.CodeSessionExhausted {
		t.Fatalf("%s - err = %v, want SESSION_EXHAUSTED", testPrefix, err)
	}
	if res.Success || res.ErrorCode != session.CodeSessionExhausted {
		t.Errorf("%s - result = %+v", testPrefix, res)
	}
}

func TestDispatch_TransportFailure(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})
	ctx := context.Background()
	if _, err := d.Blocks(ctx); err != nil {
		t.Fatalf("%s - Blocks: %v", testPrefix, err)
	}
	env.Simulator.FailNextSubmits(1)

	res, err := d.Dispatch(ctx, &spec.Specification{Command: "purge_all"})
	if err != nil {
		t.Fatalf("%s - transport failure must not be a session error: %v", testPrefix, err)
	}
	if res.Success || res.ErrorCode != CodeTransportFailure {
		t.Errorf("%s - result = %+v", testPrefix, res)
	}
	if d.Session().State() != session.StateConnected {
		t.Errorf("%s - session state = %s", testPrefix, d.Session().State())
	}
}

func TestDispatch_SoftTimeoutIsSuccess(t *testing.T) {
	env := hosttest.Start(t, host.SimulatorParams{Running: true, BusyFor: time.Hour})
	d := NewDispatcher(NewDispatcherParams{
		Registry: capability.MustDefaultRegistry(),
		Session:  session.New(session.NewParams{Host: env.Host}),
		Options:  Options{Wait: session.WaitOptions{PollInterval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond}},
	})

	res, err := d.Dispatch(context.Background(), &spec.Specification{Command: "purge_all"})
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	if !res.TimedOut || !hasWarning(res, "_PALL still running") {
		t.Errorf("%s - result = %+v", testPrefix, res)
	}
}

func TestDispatch_ExtrasFailuresOnlyWarn(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	res, err := d.Dispatch(context.Background(), &spec.Specification{
		Command:  "circle",
		Position: spec.Position{CenterPoint: spec.Pt(0, 0, 0)},
		Extras:   spec.Values{"rotation": "sideways", "fillet_radius": 0.25},
	})
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	if !hasWarning(res, "extra rotation skipped") {
		t.Errorf("%s - warnings = %v", testPrefix, res.Warnings)
	}
	cmds := env.Simulator.Commands()
	if len(cmds) != 2 || cmds[1] != "_FILLET _R 0.25\n" {
		t.Errorf("%s - commands = %q", testPrefix, cmds)
	}
}

func TestDispatch_ConsumedExtrasNotRepeated(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})

	res, err := d.Dispatch(context.Background(), &spec.Specification{
		Command: "text",
		Extras:  spec.Values{"rotation": 30.0},
	})
	if err != nil || !res.Success {
		t.Fatalf("%s - Dispatch: %v %+v", testPrefix, err, res)
	}
	if cmds := env.Simulator.Commands(); len(cmds) != 1 {
		t.Errorf("%s - rotation is a text parameter and must not be sent again: %q", testPrefix, cmds)
	}
}

func TestDispatchOutcome_Fallback(t *testing.T) {
	d, _ := newTestDispatcher(t, host.SimulatorParams{Running: true})

	res, err := d.DispatchOutcome(context.Background(), normalizer.Outcome{
		Specification:  normalizer.DefaultSpecification(),
		Source:         normalizer.SourceDefault,
		FallbackUsed:   true,
		FallbackReason: normalizer.ReasonParseFailure,
	})
	if err != nil || !res.Success {
		t.Fatalf("%s - DispatchOutcome: %v %+v", testPrefix, err, res)
	}
	if !res.FallbackUsed || !hasWarning(res, "default specification") {
		t.Errorf("%s - result = %+v", testPrefix, res)
	}
}

func TestBlocks(t *testing.T) {
	d, env := newTestDispatcher(t, host.SimulatorParams{Running: true})
	env.Simulator.AddBlock("B")
	env.Simulator.AddBlock("A")

	blocks, err := d.Blocks(context.Background())
	if err != nil {
		t.Fatalf("%s - Blocks: %v", testPrefix, err)
	}
	if len(blocks) != 2 || blocks[0] != "A" || blocks[1] != "B" {
		t.Errorf("%s - blocks = %v", testPrefix, blocks)
	}
}
