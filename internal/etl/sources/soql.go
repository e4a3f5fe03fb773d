package sources

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"sftocsv/internal/batch"
	"sftocsv/internal/etl"
	"sftocsv/internal/record"
)

// ── SOQL Source ─────────────────────────────────────────────
// Runs a SOQL query against the configured org. Nested queries emit one
// typed record per flattened object; large-in queries split an id list
// across as many requests as needed.

// QueryClient is the query surface of the Salesforce client.
type QueryClient interface {
	Query(ctx context.Context, soql string) (record.Collection, error)
	QueryNested(ctx context.Context, soql string) (*record.Bag, error)
	LargeInQuery(ctx context.Context, template string, ids []string) (record.Collection, error)
	LargeInQueryNested(ctx context.Context, template string, ids []string) (*record.Bag, error)
}

var queryClient QueryClient

// SetQueryClient is called at startup once a token is available.
func SetQueryClient(c QueryClient) { queryClient = c }

type soqlSource struct{}

func init() { etl.RegisterSource(&soqlSource{}) }

func (s *soqlSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "soql",
		Label: "Salesforce SOQL",
		ConfigFields: []etl.ConfigField{
			{Key: "query", Label: "Query", Type: "text", Required: true, Help: "SOQL query; use <in> as the id list placeholder for large-in queries"},
			{Key: "nested", Label: "Nested", Type: "select", Options: []string{"true", "false"}, Default: "false", Help: "Flatten parent/child subqueries into one relation per object type"},
			{Key: "ids", Label: "Ids", Type: "list", Help: "Values substituted for <in>"},
			{Key: "idsFile", Label: "Ids File", Type: "file", Help: "File with one id per line, substituted for <in>"},
			{Key: "quoteIds", Label: "Quote Ids", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Wrap each id in single quotes"},
		},
	}
}

func (s *soqlSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if queryClient == nil {
			errCh <- fmt.Errorf("salesforce client not initialized")
			return
		}
		query := cfg.String("query")
		ids, err := soqlIDs(cfg)
		if err != nil {
			errCh <- err
			return
		}
		largeIn := strings.Contains(query, batch.Placeholder)
		if largeIn && cfg.Bool("quoteIds", true) {
			ids = batch.QuoteIDs(ids)
		}

		if cfg.Bool("nested", false) {
			var bag *record.Bag
			if largeIn {
				bag, err = queryClient.LargeInQueryNested(ctx, query, ids)
			} else {
				bag, err = queryClient.QueryNested(ctx, query)
			}
			if err != nil {
				errCh <- err
				return
			}
			for _, typ := range bag.Types() {
				recs, _ := bag.Get(typ)
				if !etl.Emit(ctx, out, typ, recs...) {
					return
				}
			}
			return
		}

		var recs record.Collection
		if largeIn {
			recs, err = queryClient.LargeInQuery(ctx, query, ids)
		} else {
			recs, err = queryClient.Query(ctx, query)
		}
		if err != nil {
			errCh <- err
			return
		}
		etl.Emit(ctx, out, "", recs...)
	}()

	return out, errCh
}

// soqlIDs merges the inline id list with the ids file, skipping blanks.
func soqlIDs(cfg etl.SourceConfig) ([]string, error) {
	ids := cfg.Strings("ids")
	path := cfg.String("idsFile")
	if path == "" {
		return ids, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ids file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	return ids, nil
}
