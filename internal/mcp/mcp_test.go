package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/host/hosttest"
	"github.com/morezero/autodraw-agent/pkg/llm"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/validator"
)

// testSetup wires the handlers to a simulated host.
func testSetup(t *testing.T, params host.SimulatorParams) (*Handlers, *hosttest.Env) {
	t.Helper()
	env := hosttest.Start(t, params)
	reg := capability.MustDefaultRegistry()
	val := validator.New(reg, validator.Options{})
	d := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry:  reg,
		Validator: val,
		Session:   session.New(session.NewParams{Host: env.Host}),
		Options: dispatcher.Options{
			Wait: session.WaitOptions{PollInterval: 10 * time.Millisecond, Timeout: 2 * time.Second},
		},
	})
	rt := dispatcher.NewRouter(dispatcher.NewRouterParams{
		Registry:   reg,
		Validator:  val,
		Normalizer: normalizer.New(reg, llm.Unconfigured{}, normalizer.Options{}),
		Executor:   d,
	})
	return NewHandlers(rt), env
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", result.Content[0])
	return text.Text
}

func parseOutput(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, "expected success, got %s", resultText(t, result))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), v))
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, code string) {
	t.Helper()
	require.True(t, result.IsError, "expected error result, got %s", resultText(t, result))
	var payload struct {
		Error dispatcher.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Equal(t, code, payload.Error.Code)
}

func circleSpec() map[string]any {
	return map[string]any{
		"command":    "circle",
		"dimensions": map[string]any{"radius": 2},
		"position":   map[string]any{"center_point": []any{1, 1}},
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	sort.Strings(names)
	assert.Equal(t, []string{"draw", "list_blocks", "list_commands", "normalize", "validate"}, names)
}

func TestToolRegistry_NamesMatchDefinitions(t *testing.T) {
	for name, entry := range toolRegistry {
		assert.Equal(t, name, entry.def.Name)
		assert.NotEmpty(t, entry.def.Description, "tool %s has no description", name)
	}
	h, _ := testSetup(t, host.SimulatorParams{Running: true})
	assert.NotNil(t, NewServer(h.router, "test"))
}

func TestHandleDraw(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantCmd   string
	}{
		{
			name:    "structured circle",
			args:    map[string]any{"specifications": circleSpec()},
			wantCmd: "_CIRCLE 1,1 2\n",
		},
		{
			name:      "missing input",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_ARGUMENT",
		},
		{
			name: "unknown command",
			args: map[string]any{"specifications": map[string]any{
				"command":  "teleport",
				"position": map[string]any{"start_point": []any{0, 0}},
			}},
			wantError: true,
			errorCode: dispatcher.CodeInvalidSpecification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, env := testSetup(t, host.SimulatorParams{Running: true})
			result, err := h.HandleDraw(ctx, makeRequest(tt.args))
			require.NoError(t, err)

			if tt.wantError {
				assertErrorCode(t, result, tt.errorCode)
				assert.Empty(t, env.Simulator.Commands())
				return
			}
			var res dispatcher.Result
			parseOutput(t, result, &res)
			assert.True(t, res.Success)
			assert.Equal(t, []string{tt.wantCmd}, env.Simulator.Commands())
		})
	}
}

func TestHandleDraw_FreeTextFallsBack(t *testing.T) {
	h, env := testSetup(t, host.SimulatorParams{Running: true})

	result, err := h.HandleDraw(context.Background(), makeRequest(map[string]any{"text": "a light somewhere"}))
	require.NoError(t, err)

	var res dispatcher.Result
	parseOutput(t, result, &res)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "linear_light", res.Command)
	assert.NotEmpty(t, env.Simulator.Commands())
}

func TestHandleValidate(t *testing.T) {
	h, env := testSetup(t, host.SimulatorParams{Running: true})
	ctx := context.Background()

	result, err := h.HandleValidate(ctx, makeRequest(map[string]any{"specifications": circleSpec()}))
	require.NoError(t, err)
	var ok dispatcher.ValidateResult
	parseOutput(t, result, &ok)
	assert.True(t, ok.Valid)

	result, err = h.HandleValidate(ctx, makeRequest(map[string]any{"specifications": map[string]any{"command": "linear_light"}}))
	require.NoError(t, err)
	var bad dispatcher.ValidateResult
	parseOutput(t, result, &bad)
	assert.False(t, bad.Valid)
	require.NotNil(t, bad.Error)
	assert.Equal(t, "MISSING_LIGHTING_SYSTEM", bad.Error.Code)

	result, err = h.HandleValidate(ctx, makeRequest(map[string]any{}))
	require.NoError(t, err)
	assertErrorCode(t, result, "INVALID_ARGUMENT")

	assert.Empty(t, env.Simulator.Commands(), "validate must not draw")
}

func TestHandleNormalize(t *testing.T) {
	h, _ := testSetup(t, host.SimulatorParams{Running: true})

	result, err := h.HandleNormalize(context.Background(), makeRequest(map[string]any{"specifications": circleSpec()}))
	require.NoError(t, err)

	var out normalizer.Outcome
	parseOutput(t, result, &out)
	require.NotNil(t, out.Specification)
	assert.Equal(t, "circle", out.Specification.Command)
	assert.False(t, out.FallbackUsed)
}

func TestHandleListCommands(t *testing.T) {
	h, _ := testSetup(t, host.SimulatorParams{Running: true})
	ctx := context.Background()

	result, err := h.HandleListCommands(ctx, makeRequest(nil))
	require.NoError(t, err)
	var all []capability.Entry
	parseOutput(t, result, &all)
	assert.Len(t, all, len(capability.MustDefaultRegistry().List()))

	result, err = h.HandleListCommands(ctx, makeRequest(map[string]any{"class": "primitive"}))
	require.NoError(t, err)
	var primitives []capability.Entry
	parseOutput(t, result, &primitives)
	require.NotEmpty(t, primitives)
	for _, e := range primitives {
		assert.Equal(t, capability.ClassPrimitive, e.Class)
	}

	result, err = h.HandleListCommands(ctx, makeRequest(map[string]any{"class": "spaceship"}))
	require.NoError(t, err)
	assertErrorCode(t, result, "INVALID_ARGUMENT")
}

func TestHandleListBlocks(t *testing.T) {
	h, _ := testSetup(t, host.SimulatorParams{Running: true, Blocks: []string{"EXIT_SIGN", "DOOR"}})

	result, err := h.HandleListBlocks(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	var blocks []string
	parseOutput(t, result, &blocks)
	assert.ElementsMatch(t, []string{"EXIT_SIGN", "DOOR"}, blocks)
}
