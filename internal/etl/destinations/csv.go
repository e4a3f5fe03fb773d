package destinations

import (
	"context"
	"fmt"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/etl"
)

// ── CSV Destination ────────────────────────────────────────
// Writes a relation to a CSV file. Typed relations of a nested input go to
// <path>_<Type>.csv.

type csvDestination struct{}

func init() { etl.RegisterDestination(&csvDestination{}) }

func (d *csvDestination) Type() string { return "csv" }

func (d *csvDestination) Write(ctx context.Context, cfg etl.DestinationConfig, rel etl.Relation, mode etl.SyncMode) (int, string, error) {
	path := cfg.String("path")
	if path == "" {
		return 0, "", fmt.Errorf("csv destination: path is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	target := csvfile.Path(path)
	if rel.Type != "" {
		target = csvfile.BagPath(path, rel.Type)
	}
	if err := csvfile.WriteRecords(rel.Records, target, mode == etl.SyncAppend); err != nil {
		return 0, target, fmt.Errorf("csv destination: %w", err)
	}
	return len(rel.Records), target, nil
}
