package sources

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/etl"
	"sftocsv/internal/record"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file, typically a previous export.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
			{Key: "inferTypes", Label: "Infer Types", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Parse numbers and booleans; otherwise every cell is text"},
		},
	}
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := readCSVFile(cfg)
		if err != nil {
			errCh <- err
			return
		}
		etl.Emit(ctx, out, "", records...)
	}()

	return out, errCh
}

func readCSVFile(cfg etl.SourceConfig) (record.Collection, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	opts := csvfile.Options{HasHeader: cfg.Bool("hasHeader", true)}
	if delim := cfg.String("delimiter"); len(delim) > 0 {
		opts.Delimiter = []rune(delim)[0]
	}
	if cfg.Bool("inferTypes", true) {
		opts.Convert = inferCSVValue
	}
	return csvfile.Read(f, opts)
}

// inferCSVValue tries to parse a cell as a number or bool. Empty cells are
// null, which is how the CSV writer renders them.
func inferCSVValue(s string) record.Value {
	t := strings.TrimSpace(s)
	if t == "" {
		return record.Null{}
	}
	// Leading zeros mark codes and ids, not quantities.
	zeroPadded := len(t) > 1 && t[0] == '0' && t[1] != '.'
	if f, err := strconv.ParseFloat(t, 64); err == nil && !zeroPadded {
		return record.Number(f)
	}
	switch strings.ToLower(t) {
	case "true":
		return record.Bool(true)
	case "false":
		return record.Bool(false)
	}
	return record.String(s)
}
