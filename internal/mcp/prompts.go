package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("export_object",
		mcp.WithPromptDescription("Export a Salesforce object, with optional child records, to CSV"),
		mcp.WithArgument("object",
			mcp.ArgumentDescription("API name of the object, e.g. Account"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("children",
			mcp.ArgumentDescription("Child relationship names to include, e.g. Contacts,Opportunities"),
		),
	), s.handleExportObjectPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("join_job",
		mcp.WithPromptDescription("Write a job file that joins Salesforce data with another source"),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What the joined output should contain"),
			mcp.RequiredArgument(),
		),
	), s.handleJoinJobPrompt)
}

func (s *Server) handleExportObjectPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	object := req.Params.Arguments["object"]
	children := req.Params.Arguments["children"]
	if children == "" {
		children = "(none)"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Export %s to CSV", object),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Export %s records to CSV. Child relationships: %s. Follow these steps:

1. Run a small soql_query (LIMIT 5) to confirm the field names exist.
2. If child relationships are listed, write one query with a subquery per relationship and set nested=true.
3. Run the full query with outputPath set; nested results produce one <path>_<Type>.csv per object type.
4. Report the files written and the record count per type.`, object, children),
				},
			},
		},
	}, nil
}

func (s *Server) handleJoinJobPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := req.Params.Arguments["goal"]
	return &mcp.GetPromptResult{
		Description: "Write a join job",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write a job YAML file for this goal: %s

1. Use list_sources to see the input types and their config fields.
2. Use preview_source on each input to learn the field names and types. Join keys must hold values of the same type on both sides.
3. Declare inputs, then joins (inner, natural or outer with side), then an output relation with destination csv or sqlite.
4. Test the join logic on the previewed rows with join_records before saving the file.`, goal),
				},
			},
		},
	}, nil
}
