// Package batch splits long id lists into IN-clause queries that stay under
// the remote query length limit, and merges the per-batch results.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sftocsv/internal/record"
)

const (
	// Placeholder is replaced by the parenthesized id list.
	Placeholder = "<in>"
	// MaxQueryLen is the exclusive upper bound on a built query's length.
	MaxQueryLen = 20000
)

var (
	ErrNoPlaceholder = errors.New("batch: query template has no " + Placeholder + " placeholder")
	ErrEmptyInput    = errors.New("batch: id list is empty")
	ErrIDTooLong     = errors.New("batch: a single id does not fit under the query length limit")
)

// BuildInQuery substitutes as many leading ids as fit into template's
// placeholders, keeping len(query) < MaxQueryLen. It returns the built query
// and the ids that did not fit.
func BuildInQuery(template string, ids []string) (string, []string, error) {
	if !strings.Contains(template, Placeholder) {
		return "", nil, ErrNoPlaceholder
	}
	if len(ids) == 0 {
		return "", nil, ErrEmptyInput
	}

	// Every placeholder occurrence receives the same list.
	slots := strings.Count(template, Placeholder)
	size := len(template) + slots*(2-len(Placeholder))
	n := 0
	for _, id := range ids {
		add := len(id)
		if n > 0 {
			add++ // comma
		}
		add *= slots
		if size+add >= MaxQueryLen {
			break
		}
		size += add
		n++
	}
	if n == 0 {
		return "", nil, fmt.Errorf("%w: %d characters", ErrIDTooLong, len(ids[0]))
	}

	in := "(" + strings.Join(ids[:n], ",") + ")"
	query := strings.ReplaceAll(template, Placeholder, in)
	return query, ids[n:], nil
}

// Queries builds every batch query for ids, in order.
func Queries(template string, ids []string) ([]string, error) {
	var out []string
	remaining := ids
	for {
		query, rest, err := BuildInQuery(template, remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, query)
		if len(rest) == 0 {
			return out, nil
		}
		remaining = rest
	}
}

// FlatFetchFunc fetches every page of one query as flat records.
type FlatFetchFunc func(ctx context.Context, query string) (record.Collection, error)

// BagFetchFunc fetches every page of one nested query as a typed bag.
type BagFetchFunc func(ctx context.Context, query string) (*record.Bag, error)

// CollectFlat runs fetch for each batch query in turn and concatenates the
// results. The first failure stops the loop.
func CollectFlat(ctx context.Context, template string, ids []string, fetch FlatFetchFunc) (record.Collection, error) {
	queries, err := Queries(template, ids)
	if err != nil {
		return nil, err
	}
	out := record.Collection{}
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := fetch(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("batch %d of %d: %w", i+1, len(queries), err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// CollectBag is CollectFlat for nested queries: each batch is appended per
// type, preserving batch order within each type. Records are not copied.
func CollectBag(ctx context.Context, template string, ids []string, fetch BagFetchFunc) (*record.Bag, error) {
	queries, err := Queries(template, ids)
	if err != nil {
		return nil, err
	}
	out := record.NewBag()
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bag, err := fetch(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("batch %d of %d: %w", i+1, len(queries), err)
		}
		out.Extend(bag)
	}
	return out, nil
}

// QuoteIDs wraps every id in single quotes, the form SOQL expects for
// string literals inside an IN clause.
func QuoteIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "'" + strings.ReplaceAll(id, "'", `\'`) + "'"
	}
	return out
}
