package mcp

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/logging"
	"github.com/hpungsan/nounimaging/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"imaging_run": {
		def:     imagingRunToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImagingRun },
	},
	"noun_list": {
		def:     nounListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNounList },
	},
	"noun_find": {
		def:     nounFindToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNounFind },
	},
	"noun_set_image": {
		def:     nounSetImageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNounSetImage },
	},
	"noun_import": {
		def:     nounImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNounImport },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Deps holds the collaborators the tools call into.
type Deps struct {
	DB         *sql.DB
	Config     *config.Config
	Reconciler *ops.Reconciler
	Locks      *ops.RunLocks
	Logger     *slog.Logger
}

// NewServer creates a new MCP server with the noun imaging tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps Deps, version string) *server.MCPServer {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	s := server.NewMCPServer(
		"nounimaging",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	for _, name := range deps.Config.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
