package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
)

const logPrefix = "mcp:handlers"

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	router *dispatcher.Router
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(rt *dispatcher.Router) *Handlers {
	return &Handlers{router: rt}
}

// InputRequest carries the arguments of draw and normalize.
type InputRequest struct {
	Text           string          `json:"text,omitempty"`
	Specifications json.RawMessage `json:"specifications,omitempty"`
}

// ListCommandsRequest carries the arguments of list_commands.
type ListCommandsRequest struct {
	Class string `json:"class,omitempty"`
}

// HandleDraw handles the draw tool call.
func (h *Handlers) HandleDraw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InputRequest](req)
	if err != nil {
		return invalidArgument(err.Error()), nil
	}
	if input.Text == "" && len(input.Specifications) == 0 {
		return invalidArgument("one of text or specifications is required"), nil
	}
	return h.route(ctx, "draw", input)
}

// HandleValidate handles the validate tool call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InputRequest](req)
	if err != nil {
		return invalidArgument(err.Error()), nil
	}
	if len(input.Specifications) == 0 {
		return invalidArgument("specifications is required"), nil
	}
	return h.route(ctx, "validate", input)
}

// HandleNormalize handles the normalize tool call.
func (h *Handlers) HandleNormalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InputRequest](req)
	if err != nil {
		return invalidArgument(err.Error()), nil
	}
	return h.route(ctx, "normalize", input)
}

// HandleListCommands handles the list_commands tool call.
func (h *Handlers) HandleListCommands(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListCommandsRequest](req)
	if err != nil {
		return invalidArgument(err.Error()), nil
	}

	resp := h.router.Route(ctx, &dispatcher.Request{ID: uuid.NewString(), Method: "commands"})
	entries, _ := resp.Result.([]capability.Entry)
	if input.Class == "" {
		return successResult(entries)
	}

	known := false
	for _, c := range capability.Classes {
		if string(c) == input.Class {
			known = true
			break
		}
	}
	if !known {
		return invalidArgument(fmt.Sprintf("unknown class %q", input.Class)), nil
	}
	filtered := make([]capability.Entry, 0, len(entries))
	for _, e := range entries {
		if string(e.Class) == input.Class {
			filtered = append(filtered, e)
		}
	}
	return successResult(filtered)
}

// HandleListBlocks handles the list_blocks tool call.
func (h *Handlers) HandleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.route(ctx, "blocks", nil)
}

// route sends one envelope through the router and shapes its response.
func (h *Handlers) route(ctx context.Context, method string, params any) (*mcp.CallToolResult, error) {
	req := &dispatcher.Request{ID: uuid.NewString(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return invalidArgument(err.Error()), nil
		}
		req.Params = raw
	}

	resp := h.router.Route(ctx, req)
	if !resp.Ok {
		slog.Debug(fmt.Sprintf("%s - %s failed: %s", logPrefix, method, resp.Error.Code))
		return errorResult(resp.Error, resp.Result), nil
	}
	return successResult(resp.Result)
}

// Result helpers

func invalidArgument(message string) *mcp.CallToolResult {
	return errorResult(&dispatcher.ErrorDetail{Code: "INVALID_ARGUMENT", Message: message}, nil)
}

// errorResult creates an MCP error result. A failed draw keeps its result
// next to the error so callers see warnings and the rendered command.
func errorResult(detail *dispatcher.ErrorDetail, result any) *mcp.CallToolResult {
	payload := map[string]any{"error": detail}
	if result != nil {
		payload["result"] = result
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
