// Package mcpserver exposes queries, joins and ETL jobs as MCP tools so
// agents can export Salesforce data without a shell.
package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sftocsv/internal/etl/sources"
	"sftocsv/internal/service"
	"sftocsv/internal/storage"
)

// Server is the MCP server for sftocsv.
type Server struct {
	mcp *server.MCPServer
	log *slog.Logger

	jobs     *service.JobService
	client   sources.QueryClient
	queries  *storage.QueryLogStore
	allowRun bool
}

// Deps holds everything the tools need. Client may be nil when no token is
// configured; query tools then report an error.
type Deps struct {
	Jobs     *service.JobService
	Client   sources.QueryClient
	QueryLog *storage.QueryLogStore
	// AllowRun enables run_job, which writes files and tables.
	AllowRun bool
	Logger   *slog.Logger
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		log:      logger,
		jobs:     deps.Jobs,
		client:   deps.Client,
		queries:  deps.QueryLog,
		allowRun: deps.AllowRun,
	}

	s.mcp = server.NewMCPServer(
		"sftocsv",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerQueryTools()
	s.registerRecordTools()
	s.registerDatabaseTools()
	if s.jobs != nil {
		s.registerETLTools()
		s.registerResources()
	}
	s.registerPrompts()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

// requireClient returns the query client or an error naming the fix.
func (s *Server) requireClient() (sources.QueryClient, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no Salesforce access token configured (set SF_ACCESS_TOKEN or client credentials)")
	}
	return s.client, nil
}

// recordQuery adds an entry to the query log, if one is configured.
func (s *Server) recordQuery(ctx context.Context, entry *storage.QueryLog) {
	if s.queries == nil {
		return
	}
	if err := s.queries.Record(entry); err != nil {
		s.log.WarnContext(ctx, "mcp: failed to record query", "err", err)
	}
}
