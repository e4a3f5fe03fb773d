package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sftocsv/internal/record"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a relation into a target system.
// Implementations live in etl/destinations/.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop existing rows, write fresh
	SyncAppend  SyncMode = "append"  // add rows after the existing ones
)

// DestinationConfig is an opaque configuration map parsed per destination type.
type DestinationConfig = SourceConfig

// Relation is a named collection handed to a destination. Type is set when
// the relation is one object type of a nested input, so destinations can
// derive per-type targets (file suffix, table name).
type Relation struct {
	Name    string
	Type    string
	Schema  *Schema
	Records record.Collection
}

// Destination writes relations to a target system.
type Destination interface {
	Type() string
	// Write stores rel and returns the number of rows written and a
	// description of where they went (file path, table name).
	Write(ctx context.Context, cfg DestinationConfig, rel Relation, mode SyncMode) (written int, target string, err error)
}

var (
	destMu       sync.RWMutex
	destinations = map[string]Destination{}
)

// RegisterDestination registers a destination by type.
// Called from init() in each destination implementation file.
func RegisterDestination(d Destination) {
	destMu.Lock()
	defer destMu.Unlock()
	destinations[d.Type()] = d
}

// GetDestination returns a registered destination by type.
func GetDestination(typ string) (Destination, error) {
	destMu.RLock()
	defer destMu.RUnlock()
	d, ok := destinations[typ]
	if !ok {
		return nil, fmt.Errorf("unknown destination type: %q", typ)
	}
	return d, nil
}

// ListDestinations returns the registered destination types, sorted.
func ListDestinations() []string {
	destMu.RLock()
	defer destMu.RUnlock()
	out := make([]string, 0, len(destinations))
	for t := range destinations {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
