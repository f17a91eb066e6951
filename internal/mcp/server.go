package mcp

import (
	"context"
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/quotemap/internal/config"
)

// Tool groups
const (
	TypeAnalysis = "analysis"
	TypeDataset  = "dataset"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{TypeAnalysis, TypeDataset}

// toolEntry pairs a tool definition with its group and a handler factory.
type toolEntry struct {
	def     mcp.Tool
	typ     string
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"thread_build_tree": {
		def:     buildTreeToolDef,
		typ:     TypeAnalysis,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBuildTree },
	},
	"transcript_flatten": {
		def:     flattenToolDef,
		typ:     TypeAnalysis,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFlatten },
	},
	"codes_align": {
		def:     alignToolDef,
		typ:     TypeAnalysis,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAlign },
	},
	"codes_report": {
		def:     reportToolDef,
		typ:     TypeAnalysis,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReport },
	},
	"dataset_fetch_batch": {
		def:     fetchBatchToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetchBatch },
	},
	"dataset_import": {
		def:     importToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"dataset_list": {
		def:     listToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"dataset_posts": {
		def:     postsToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePosts },
	},
	"dataset_get_post": {
		def:     getPostToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetPost },
	},
	"dataset_delete": {
		def:     deleteToolDef,
		typ:     TypeDataset,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
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

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool returns the group a tool belongs to, or "" for unknown tools.
func GetTypeForTool(toolName string) string {
	return toolRegistry[toolName].typ
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name, entry := range toolRegistry {
		if typeSet[entry.typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with quotemap tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"quotemap",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(db, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(db, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
