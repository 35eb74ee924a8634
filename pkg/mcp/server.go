package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
)

// CatalogServerDeps holds the dependencies for creating a CatalogServer.
type CatalogServerDeps struct {
	// RegistryPath is the registry file, re-read on every tool call.
	RegistryPath string
	Validator    *validation.Validator
	// Store is optional; catalog.history reports an error without it.
	Store   store.Store
	Version string
	Logger  *slog.Logger
}

// CatalogServer wraps an MCP server with catalog tool handlers.
type CatalogServer struct {
	registryPath string
	validator    *validation.Validator
	store        store.Store
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

// NewCatalogServer creates a new CatalogServer with all 4 tools registered.
func NewCatalogServer(deps CatalogServerDeps) *CatalogServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &CatalogServer{
		registryPath: deps.RegistryPath,
		validator:    deps.Validator,
		store:        deps.Store,
		logger:       logger,
	}

	mcpSrv := server.NewMCPServer(
		"catalog",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Plugin catalog tools. Use catalog.list to browse plugins, catalog.get to read one entry, catalog.validate to check the registry or a candidate record before opening a pull request, and catalog.history to inspect recent check runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CatalogServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CatalogServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *CatalogServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("catalog.list",
		mcp.WithDescription("List plugins in the catalog"),
		mcp.WithString("tag", mcp.Description("Only plugins carrying this tag (case-insensitive)")),
		mcp.WithBoolean("featured", mcp.Description("Only featured (true) or non-featured (false) plugins")),
		mcp.WithString("author", mcp.Description("Only plugins by this author (case-insensitive)")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("catalog.get",
		mcp.WithDescription("Get a plugin entry by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Plugin id")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("catalog.validate",
		mcp.WithDescription("Validate the whole catalog or a single candidate record"),
		mcp.WithObject("record", mcp.Description("Candidate plugin record; when omitted every catalog entry is validated")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("catalog.history",
		mcp.WithDescription("List recent catalog check runs"),
		mcp.WithString("kind",
			mcp.Enum("validate", "clone", "report", "audit"),
			mcp.Description("Only runs of this kind"),
		),
		mcp.WithString("status",
			mcp.Enum("passed", "failed"),
			mcp.Description("Only runs with this status"),
		),
		mcp.WithNumber("pr_number", mcp.Description("Only runs for this pull request")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
	)
}
