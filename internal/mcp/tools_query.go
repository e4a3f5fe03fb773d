package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"sftocsv/internal/batch"
	"sftocsv/internal/csvfile"
	"sftocsv/internal/record"
	"sftocsv/internal/storage"
)

func (s *Server) registerQueryTools() {
	s.mcp.AddTool(mcp.NewTool("soql_query",
		mcp.WithDescription(`Run a SOQL query and return the records as JSON.
- nested: flatten parent/child subqueries into one list per object type; each child gets a field named after its parent's type holding the parent Id.
- ids: when the query contains <in>, the ids are split across as many queries as needed to stay under the URL length limit.
- outputPath: optionally also write CSV (nested results write <path>_<Type>.csv per type).`),
		mcp.WithString("query", mcp.Description("SOQL query; use <in> as the id list placeholder"), mcp.Required()),
		mcp.WithBoolean("nested", mcp.Description("Flatten subqueries by object type (default false)")),
		mcp.WithString("ids", mcp.Description("Ids for <in>, comma or newline separated")),
		mcp.WithBoolean("quoteIds", mcp.Description("Wrap each id in single quotes (default true)")),
		mcp.WithString("outputPath", mcp.Description("CSV path to write the result to (optional)")),
		mcp.WithNumber("maxRows", mcp.Description("Maximum records returned per type in the response (default 200)")),
	), s.handleSOQLQuery)

	s.mcp.AddTool(mcp.NewTool("build_in_queries",
		mcp.WithDescription("Split an id list into the queries a large-in SOQL query would run, without running them"),
		mcp.WithString("template", mcp.Description("Query containing the <in> placeholder"), mcp.Required()),
		mcp.WithString("ids", mcp.Description("Ids, comma or newline separated"), mcp.Required()),
		mcp.WithBoolean("quoteIds", mcp.Description("Wrap each id in single quotes (default true)")),
	), s.handleBuildInQueries)
}

func (s *Server) handleSOQLQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	query := req.GetString("query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	nested := argBool(args, "nested", false)
	ids := argStrings(args, "ids")
	largeIn := strings.Contains(query, batch.Placeholder)
	if largeIn && argBool(args, "quoteIds", true) {
		ids = batch.QuoteIDs(ids)
	}
	outputPath := req.GetString("outputPath", "")
	maxRows := argInt(args, "maxRows", 200)

	entry := &storage.QueryLog{Kind: storage.QueryFlat, Query: query}
	if nested {
		entry.Kind = storage.QueryNested
	}
	if largeIn {
		entry.Kind = storage.QueryLargeIn
		if qs, err := batch.Queries(query, ids); err == nil {
			entry.Requests = len(qs)
		}
	}
	start := time.Now()
	defer func() {
		entry.DurationMs = time.Since(start).Milliseconds()
		s.recordQuery(ctx, entry)
	}()

	if nested {
		var bag *record.Bag
		if largeIn {
			bag, err = client.LargeInQueryNested(ctx, query, ids)
		} else {
			bag, err = client.QueryNested(ctx, query)
		}
		if err != nil {
			entry.Error = err.Error()
			return nil, err
		}
		entry.Rows = bag.Count()

		counts := map[string]int{}
		records := map[string]record.Collection{}
		for _, typ := range bag.Types() {
			recs, _ := bag.Get(typ)
			counts[typ] = len(recs)
			records[typ] = truncate(recs, maxRows)
		}
		result := map[string]any{"types": bag.Types(), "counts": counts, "records": records}
		if outputPath != "" {
			written, err := csvfile.WriteBag(bag, outputPath, false)
			if err != nil {
				return nil, fmt.Errorf("write csv: %w", err)
			}
			result["files"] = written
		}
		return jsonResult(result)
	}

	var recs record.Collection
	if largeIn {
		recs, err = client.LargeInQuery(ctx, query, ids)
	} else {
		recs, err = client.Query(ctx, query)
	}
	if err != nil {
		entry.Error = err.Error()
		return nil, err
	}
	entry.Rows = len(recs)

	result := map[string]any{"count": len(recs), "records": truncate(recs, maxRows)}
	if outputPath != "" {
		path := csvfile.Path(outputPath)
		if err := csvfile.WriteRecords(recs, path, false); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
		result["files"] = []string{path}
	}
	return jsonResult(result)
}

func (s *Server) handleBuildInQueries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	template := req.GetString("template", "")
	ids := argStrings(args, "ids")
	if argBool(args, "quoteIds", true) {
		ids = batch.QuoteIDs(ids)
	}
	queries, err := batch.Queries(template, ids)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"count": len(queries), "queries": queries})
}

func truncate(recs record.Collection, n int) record.Collection {
	if n > 0 && len(recs) > n {
		return recs[:n]
	}
	return recs
}
