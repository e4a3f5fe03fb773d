package mcpserver

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"sftocsv/internal/dbclient"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("List the tables (or collections) and columns of a database usable as a job input. To read rows, use preview_source with the database or mongo source."),
		mcp.WithString("connection", mcp.Description(`Connection as JSON: {"driver":"postgres|mysql|sqlite|mongodb","host":"...","port":5432,"username":"...","passwordEnv":"ENV_VAR","database":"..."}`), mcp.Required()),
	), s.handleIntrospectDatabase)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cfg map[string]any
	if err := parseJSON(argJSON(req.GetArguments(), "connection"), &cfg); err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	conn, err := dbclient.ConnectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if env, _ := cfg["passwordEnv"].(string); env != "" {
		pw, ok := os.LookupEnv(env)
		if !ok {
			return nil, fmt.Errorf("password variable %s is not set", env)
		}
		conn.Password = pw
	}

	c, err := dbclient.NewConnector(conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	schema, err := c.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	return jsonResult(schema)
}
