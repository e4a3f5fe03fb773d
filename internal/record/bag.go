package record

import (
	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Collection is an ordered sequence of records of roughly uniform shape.
type Collection []*Record

// Clone deep-copies every record.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, r := range c {
		out[i] = r.Clone()
	}
	return out
}

// Keys returns the union of field names across the collection, in the
// order each name is first seen.
func (c Collection) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range c {
		r.Range(func(k string, _ Value) bool {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
			return true
		})
	}
	return keys
}

// StripField returns copies of every record with key removed.
func (c Collection) StripField(key string) Collection {
	out := make(Collection, len(c))
	for i, r := range c {
		cp := r.Clone()
		cp.Delete(key)
		out[i] = cp
	}
	return out
}

// ── Bag ────────────────────────────────────────────────────
// A typed record bag: type name → Collection. Types are kept in the
// order they were first added so output is deterministic.

// Bag groups records by their type name.
type Bag struct {
	types *orderedmap.OrderedMap[string, Collection]
}

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{types: orderedmap.New[string, Collection]()}
}

// Add appends records under typ.
func (b *Bag) Add(typ string, recs ...*Record) {
	existing, _ := b.types.Get(typ)
	b.types.Set(typ, append(existing, recs...))
}

// Get returns the collection stored under typ.
func (b *Bag) Get(typ string) (Collection, bool) {
	if b == nil {
		return nil, false
	}
	return b.types.Get(typ)
}

// Types returns type names in first-seen order.
func (b *Bag) Types() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, b.types.Len())
	for pair := b.types.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Len returns the number of types.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return b.types.Len()
}

// Count returns the total number of records across all types.
func (b *Bag) Count() int {
	n := 0
	for _, typ := range b.Types() {
		c, _ := b.types.Get(typ)
		n += len(c)
	}
	return n
}

// Clone deep-copies the bag.
func (b *Bag) Clone() *Bag {
	out := NewBag()
	for _, typ := range b.Types() {
		c, _ := b.types.Get(typ)
		out.types.Set(typ, c.Clone())
	}
	return out
}

// MarshalJSON renders the bag as {type: [records...]} in type order.
func (b *Bag) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return b.types.MarshalJSON()
}

// UnmarshalJSON reads {type: [records...]}, keeping type order.
func (b *Bag) UnmarshalJSON(data []byte) error {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	b.types = orderedmap.New[string, Collection](raw.Len())
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		var items []json.RawMessage
		if err := json.Unmarshal(pair.Value, &items); err != nil {
			return err
		}
		c := make(Collection, 0, len(items))
		for _, item := range items {
			rec, err := Parse(item)
			if err != nil {
				return err
			}
			c = append(c, rec)
		}
		b.types.Set(pair.Key, c)
	}
	return nil
}

// Extend appends src's records to b, per type, without copying them.
// src keeps its own slices.
func (b *Bag) Extend(src *Bag) {
	for _, typ := range src.Types() {
		c, _ := src.Get(typ)
		b.Add(typ, c...)
	}
}

// MergeBags returns a new bag holding dst's records followed by src's,
// concatenated per type. Neither input is modified.
func MergeBags(dst, src *Bag) *Bag {
	out := NewBag()
	for _, b := range []*Bag{dst, src} {
		for _, typ := range b.Types() {
			c, _ := b.Get(typ)
			out.Add(typ, c.Clone()...)
		}
	}
	return out
}
