// Package join implements relational joins over in-memory record
// collections. All functions are pure: inputs are never modified and every
// output record is a fresh copy.
package join

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"sftocsv/internal/record"
)

// Side selects which collection drives an outer join.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideFull  Side = "full"
)

// Sides lists the accepted outer join sides.
var Sides = []Side{SideLeft, SideRight, SideFull}

// InvalidArgumentError reports a bad join argument.
type InvalidArgumentError struct {
	Arg   string
	Value string
	Valid []string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %q: must be one of %s", e.Arg, e.Value, strings.Join(e.Valid, ", "))
}

// ParseSide validates s as an outer join side.
func ParseSide(s string) (Side, error) {
	for _, side := range Sides {
		if string(side) == s {
			return side, nil
		}
	}
	valid := make([]string, len(Sides))
	for i, side := range Sides {
		valid[i] = string(side)
	}
	return "", &InvalidArgumentError{Arg: "side", Value: s, Valid: valid}
}

// Combine merges b into a copy of a. On key collisions a's value wins.
func Combine(a, b *record.Record) *record.Record {
	out := a.Clone()
	b.Range(func(k string, v record.Value) bool {
		if !out.Has(k) {
			out.Set(k, record.CloneValue(v))
		}
		return true
	})
	return out
}

// keysMatch reports whether l[lk] and r[rk] are both present and equal.
func keysMatch(l, r *record.Record, lk, rk string) bool {
	lv, ok := l.Get(lk)
	if !ok {
		return false
	}
	rv, ok := r.Get(rk)
	if !ok {
		return false
	}
	return record.Equal(lv, rv)
}

// Inner emits Combine(l, r) for every pair whose keys match, left-major.
// Duplicate key values multiply rows. Unless preserveRightKey is set, the
// right key field is removed from each emitted row.
func Inner(left, right record.Collection, leftKey, rightKey string, preserveRightKey bool) record.Collection {
	out := record.Collection{}
	for _, l := range left {
		for _, r := range right {
			if !keysMatch(l, r, leftKey, rightKey) {
				continue
			}
			row := Combine(l, r)
			if !preserveRightKey {
				row.Delete(rightKey)
			}
			out = append(out, row)
		}
	}
	return out
}

// Natural pairs each left record with the first right record that matches
// on shared field names. Inclusive mode matches when any shared field is
// equal; exclusive mode requires all of them. Records sharing no field
// names never match. Unmatched left records are dropped.
func Natural(left, right record.Collection, exclusive bool) record.Collection {
	out := record.Collection{}
	for _, l := range left {
		for _, r := range right {
			if naturalMatch(l, r, exclusive) {
				out = append(out, Combine(l, r))
				break
			}
		}
	}
	return out
}

func naturalMatch(l, r *record.Record, exclusive bool) bool {
	shared, equal := 0, 0
	l.Range(func(k string, lv record.Value) bool {
		rv, ok := r.Get(k)
		if !ok {
			return true
		}
		shared++
		if record.Equal(lv, rv) {
			equal++
		}
		return true
	})
	if shared == 0 {
		return false
	}
	if exclusive {
		return equal == shared
	}
	return equal > 0
}

// Outer joins left and right on leftKey/rightKey. The side decides which
// collection drives the scan: left and full use left as the outer side,
// right uses right. An outer record without matches is emitted alone. For
// a full join, inner records never matched are appended in their original
// order. Matches are tracked by position so duplicate inner rows are
// counted independently.
func Outer(left, right record.Collection, leftKey, rightKey string, side Side, preserveInnerKey bool) (record.Collection, error) {
	outer, inner := left, right
	outerKey, innerKey := leftKey, rightKey
	switch side {
	case SideLeft, SideFull:
	case SideRight:
		outer, inner = right, left
		outerKey, innerKey = rightKey, leftKey
	default:
		_, err := ParseSide(string(side))
		return nil, err
	}

	matched := roaring.New()
	out := record.Collection{}
	for _, o := range outer {
		hits := 0
		for i, in := range inner {
			if !keysMatch(o, in, outerKey, innerKey) {
				continue
			}
			row := Combine(o, in)
			if !preserveInnerKey {
				row.Delete(innerKey)
			}
			out = append(out, row)
			matched.Add(uint32(i))
			hits++
		}
		if hits == 0 {
			out = append(out, o.Clone())
		}
	}

	if side == SideFull {
		for i, in := range inner {
			if !matched.Contains(uint32(i)) {
				out = append(out, in.Clone())
			}
		}
	}
	return out, nil
}
