package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sftocsv/internal/etl"
)

func (s *Server) registerETLTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available job input source types with their configuration fields"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Read the first rows of a source without running a job or writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type (see list_sources)"), mcp.Required()),
		mcp.WithString("sourceConfig", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Rows to return (default 10)")),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List the loaded jobs with their triggers and last run status"),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("Show recent job runs, newest first"),
		mcp.WithString("job", mcp.Description("Job id or name (optional, all jobs if omitted)")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs (default 20)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a job now. Replaces or appends to its CSV files or SQLite tables. Only available when the server was started with --allow-run."),
		mcp.WithString("job", mcp.Description("Job id or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJob)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.jobs.ListSources())
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sourceType := req.GetString("sourceType", "")
	cfgText := argJSON(args, "sourceConfig")
	if sourceType == "" || cfgText == "" {
		return nil, fmt.Errorf("sourceType and sourceConfig are required")
	}
	var cfg etl.SourceConfig
	if err := parseJSON(cfgText, &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}

	preview, err := s.jobs.PreviewSource(ctx, sourceType, cfg, argInt(args, "maxRows", 10))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		return nil, err
	}
	return jsonResult(jobs)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.jobs.ListRunLogs(req.GetString("job", ""), argInt(req.GetArguments(), "limit", 20))
	if err != nil {
		return nil, err
	}
	return jsonResult(runs)
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("job", "")
	if ref == "" {
		return nil, fmt.Errorf("job is required")
	}
	if !s.allowRun {
		return textResult("run_job is disabled; restart the server with --allow-run to enable it"), nil
	}

	result, err := s.jobs.RunJob(ctx, ref, "mcp")
	if err != nil {
		return nil, fmt.Errorf("run job: %w", err)
	}
	return jsonResult(result)
}
