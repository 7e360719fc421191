// Package mcp exposes the drawing pipeline as MCP tools over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/morezero/autodraw-agent/pkg/dispatcher"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var drawToolDef = mcp.NewTool("draw",
	mcp.WithDescription("Draw one element in the host CAD application. Pass either free text or a structured specification."),
	mcp.WithString("text", mcp.Description("Natural-language drawing request, e.g. \"a 10 by 4 linear light at 5,5\"")),
	mcp.WithObject("specifications", mcp.Description("Structured drawing specification: command, lighting_system, dimensions, position, attributes, extras")),
)

var validateToolDef = mcp.NewTool("validate",
	mcp.WithDescription("Check a structured drawing specification against the capability catalog without drawing it."),
	mcp.WithObject("specifications", mcp.Required(), mcp.Description("Structured drawing specification")),
)

var normalizeToolDef = mcp.NewTool("normalize",
	mcp.WithDescription("Turn free text or a loose specification into the canonical specification that draw would use."),
	mcp.WithString("text", mcp.Description("Natural-language drawing request")),
	mcp.WithObject("specifications", mcp.Description("Structured drawing specification")),
)

var listCommandsToolDef = mcp.NewTool("list_commands",
	mcp.WithDescription("List the drawing commands in the capability catalog."),
	mcp.WithString("class", mcp.Description("Only list commands of this class (fixture, primitive, annotation, block, modifier, housekeeping)")),
)

var listBlocksToolDef = mcp.NewTool("list_blocks",
	mcp.WithDescription("List the block definitions in the host's active document."),
)

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"draw": {
		def:     drawToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraw },
	},
	"validate": {
		def:     validateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleValidate },
	},
	"normalize": {
		def:     normalizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNormalize },
	},
	"list_commands": {
		def:     listCommandsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListCommands },
	},
	"list_blocks": {
		def:     listBlocksToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListBlocks },
	},
}

// AllToolNames returns a list of all tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates an MCP server with the drawing tools registered.
func NewServer(rt *dispatcher.Router, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"autodraw-agent",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(rt)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the MCP tools on stdio until stdin closes.
func Run(rt *dispatcher.Router, version string) error {
	return server.ServeStdio(NewServer(rt, version))
}
