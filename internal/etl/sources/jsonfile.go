package sources

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"sftocsv/internal/etl"
	"sftocsv/internal/record"
)

// ── JSON File Source ────────────────────────────────────────
// Reads records from a local JSON file, such as a saved query response.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Path to the JSON file"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Help: "Dot path (data.items) or JSONPath ($.data[*].items) to the records. Leave empty if root is an array."},
		},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		filePath := cfg.String("filePath")
		data, err := os.ReadFile(filePath)
		if err != nil {
			errCh <- fmt.Errorf("read file: %w", err)
			return
		}
		records, err := decodeRecords(data, cfg.String("dataPath"))
		if err != nil {
			errCh <- err
			return
		}
		etl.Emit(ctx, out, "", records...)
	}()

	return out, errCh
}

// decodeRecords parses a JSON document and returns the records at dataPath.
// Dot paths walk the document with field order intact; JSONPath
// expressions (starting with $) are evaluated with ojg, and objects they
// select have their keys sorted.
func decodeRecords(data []byte, dataPath string) (record.Collection, error) {
	if strings.HasPrefix(dataPath, "$") {
		doc, err := oj.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		x, err := jp.ParseString(dataPath)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath %q: %w", dataPath, err)
		}
		var out record.Collection
		for _, match := range x.Get(doc) {
			out = append(out, toRecords(record.ValueOf(match))...)
		}
		return out, nil
	}

	root, err := record.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if dataPath != "" {
		for _, part := range strings.Split(dataPath, ".") {
			rec, ok := root.(*record.Record)
			if !ok {
				return nil, fmt.Errorf("invalid data path: %q is not an object", part)
			}
			if root, ok = rec.Get(part); !ok {
				return nil, fmt.Errorf("invalid data path: %q not found", part)
			}
		}
	}
	return toRecords(root), nil
}

// toRecords converts a decoded value into records: an array yields its
// object elements, an object yields itself.
func toRecords(v record.Value) record.Collection {
	switch val := v.(type) {
	case record.List:
		out := make(record.Collection, 0, len(val))
		for _, item := range val {
			if rec, ok := item.(*record.Record); ok {
				out = append(out, rec)
			}
		}
		return out
	case *record.Record:
		return record.Collection{val}
	default:
		return nil
	}
}
