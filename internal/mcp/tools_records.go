package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sftocsv/internal/flatten"
	"sftocsv/internal/join"
	"sftocsv/internal/record"
)

func (s *Server) registerRecordTools() {
	s.mcp.AddTool(mcp.NewTool("join_records",
		mcp.WithDescription(`Join two JSON arrays of records in memory.
- inner: every left/right pair whose leftKey and rightKey values are equal (same type); the right key is dropped unless preserveKey.
- natural: each left row joins the first right row sharing a field value; exclusive requires every shared field to match.
- outer: like inner, plus unmatched rows of the outer side (left, right or full).`),
		mcp.WithString("kind", mcp.Description("inner | natural | outer"), mcp.Required()),
		mcp.WithString("left", mcp.Description("JSON array of left records"), mcp.Required()),
		mcp.WithString("right", mcp.Description("JSON array of right records"), mcp.Required()),
		mcp.WithString("leftKey", mcp.Description("Left key field (inner, outer)")),
		mcp.WithString("rightKey", mcp.Description("Right key field (inner, outer)")),
		mcp.WithString("side", mcp.Description("left | right | full (outer only)")),
		mcp.WithBoolean("exclusive", mcp.Description("Natural join: require every shared field to match")),
		mcp.WithBoolean("preserveKey", mcp.Description("Keep the right (inner-side) key in joined rows")),
	), s.handleJoinRecords)

	s.mcp.AddTool(mcp.NewTool("flatten_records",
		mcp.WithDescription("Flatten a nested SOQL result (records with attributes and subquery blocks) into one list per object type"),
		mcp.WithString("records", mcp.Description("JSON array of query result records"), mcp.Required()),
	), s.handleFlattenRecords)
}

func (s *Server) handleJoinRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	left, err := argRecords(args, "left")
	if err != nil {
		return nil, err
	}
	right, err := argRecords(args, "right")
	if err != nil {
		return nil, err
	}
	leftKey := req.GetString("leftKey", "")
	rightKey := req.GetString("rightKey", "")
	preserve := argBool(args, "preserveKey", false)

	var out record.Collection
	switch kind := req.GetString("kind", ""); kind {
	case "inner":
		if leftKey == "" || rightKey == "" {
			return nil, fmt.Errorf("leftKey and rightKey are required for inner joins")
		}
		out = join.Inner(left, right, leftKey, rightKey, preserve)
	case "natural":
		out = join.Natural(left, right, argBool(args, "exclusive", false))
	case "outer":
		if leftKey == "" || rightKey == "" {
			return nil, fmt.Errorf("leftKey and rightKey are required for outer joins")
		}
		side, err := join.ParseSide(req.GetString("side", ""))
		if err != nil {
			return nil, err
		}
		if out, err = join.Outer(left, right, leftKey, rightKey, side, preserve); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown join kind %q", kind)
	}
	return jsonResult(map[string]any{"count": len(out), "records": out})
}

func (s *Server) handleFlattenRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := argRecords(req.GetArguments(), "records")
	if err != nil {
		return nil, err
	}
	bag, err := flatten.Flatten(recs)
	if err != nil {
		return nil, err
	}
	return jsonResult(bag)
}
