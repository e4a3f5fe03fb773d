package sources

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"sftocsv/internal/dbclient"
	"sftocsv/internal/etl"
)

// ── Mongo Source ───────────────────────────────────────────
// Reads documents from a MongoDB collection with find or aggregate.
// Filters accept Extended JSON ($oid, $date, ...).

type mongoSource struct{}

func init() { etl.RegisterSource(&mongoSource{}) }

func (s *mongoSource) Spec() etl.SourceSpec {
	fields := connectionFields([]string{dbclient.DriverMongoDB})
	fields[0].Required = false
	return etl.SourceSpec{
		Type:  "mongo",
		Label: "MongoDB",
		ConfigFields: append(fields,
			etl.ConfigField{Key: "collection", Label: "Collection", Type: "string", Required: true},
			etl.ConfigField{Key: "filter", Label: "Filter", Type: "text", Help: "Query filter document"},
			etl.ConfigField{Key: "projection", Label: "Projection", Type: "text"},
			etl.ConfigField{Key: "sort", Label: "Sort", Type: "text"},
			etl.ConfigField{Key: "limit", Label: "Limit", Type: "string"},
			etl.ConfigField{Key: "pipeline", Label: "Pipeline", Type: "text", Help: "Aggregation stages; switches to aggregate"},
			etl.ConfigField{Key: "fetchSize", Label: "Fetch Size", Type: "string", Default: "500"},
		),
	}
}

func (s *mongoSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		withDriver := etl.SourceConfig{"driver": dbclient.DriverMongoDB}
		for k, v := range cfg {
			if k != "driver" {
				withDriver[k] = v
			}
		}
		conn, err := resolveConnection(withDriver)
		if err != nil {
			errCh <- err
			return
		}
		query, err := MongoQuery(cfg)
		if err != nil {
			errCh <- err
			return
		}
		if err := streamQuery(ctx, conn, query, cfg.Int("fetchSize", defaultFetchSize), out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// MongoQuery renders the source config as the connector's JSON query.
// Document-valued fields may be given as maps or as JSON text.
func MongoQuery(cfg etl.SourceConfig) (string, error) {
	q := map[string]any{"collection": cfg.String("collection")}
	for _, key := range []string{"filter", "projection", "sort", "pipeline"} {
		v, ok := cfg[key]
		if !ok || v == nil {
			continue
		}
		if text, isText := v.(string); isText {
			if text == "" {
				continue
			}
			q[key] = json.RawMessage(text)
			continue
		}
		q[key] = v
	}
	if _, ok := q["pipeline"]; ok {
		q["operation"] = "aggregate"
	}
	if limit := cfg.Int("limit", 0); limit > 0 {
		q["limit"] = limit
	}

	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode mongo query: %w", err)
	}
	return string(data), nil
}
