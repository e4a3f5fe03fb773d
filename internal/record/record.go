package record

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format. Sources emit Records, the join and
// flatten stages produce Records, destinations consume Records.
// Field order is insertion order and survives JSON round trips.

// Record is an ordered mapping from field name to Value.
// The zero value is not usable; call New.
type Record struct {
	fields *orderedmap.OrderedMap[string, Value]
}

// Field is a single name/value pair, used to build records inline.
type Field struct {
	Name  string
	Value Value
}

// F is shorthand for a Field literal.
func F(name string, v any) Field { return Field{Name: name, Value: ValueOf(v)} }

// New creates a record holding the given fields in order.
func New(fields ...Field) *Record {
	r := &Record{fields: orderedmap.New[string, Value](len(fields))}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return r.fields.Len()
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Set stores v under key. An existing key keeps its position.
func (r *Record) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	r.fields.Set(key, v)
}

// Delete removes key and reports whether it was present.
func (r *Record) Delete(key string) bool {
	_, ok := r.fields.Delete(key)
	return ok
}

// Keys returns field names in order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for every field in order until fn returns false.
func (r *Record) Range(fn func(key string, v Value) bool) {
	if r == nil {
		return
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a deep copy that shares no mutable structure with r.
func (r *Record) Clone() *Record {
	out := New()
	r.Range(func(k string, v Value) bool {
		out.Set(k, CloneValue(v))
		return true
	})
	return out
}

// Equal reports whether both records hold the same fields with equal values.
// Field order is not significant.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	equal := true
	r.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !Equal(v, ov) {
			equal = false
		}
		return equal
	})
	return equal
}

// Map converts the record into a plain map, dropping order.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	r.Range(func(k string, v Value) bool {
		out[k] = Native(v)
		return true
	})
	return out
}

// String renders the record as compact JSON.
func (r *Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("record(%d fields)", r.Len())
	}
	return string(data)
}

// MarshalJSON writes the fields as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r.fields.MarshalJSON()
}

// UnmarshalJSON reads a JSON object, keeping the source key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := raw.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	r.fields = orderedmap.New[string, Value](raw.Len())
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		v, err := decodeValue(pair.Value)
		if err != nil {
			return fmt.Errorf("decode field %q: %w", pair.Key, err)
		}
		r.fields.Set(pair.Key, v)
	}
	return nil
}

// Parse decodes a single JSON object into a Record.
func Parse(data []byte) (*Record, error) {
	r := New()
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) *Record {
	r, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return r
}

// DecodeValue decodes any JSON document into a Value.
func DecodeValue(data []byte) (Value, error) {
	return decodeValue(data)
}

func decodeValue(data json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Null{}, nil
	}
	switch trimmed[0] {
	case '{':
		rec := New()
		if err := rec.UnmarshalJSON(trimmed); err != nil {
			return nil, err
		}
		return rec, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		list := make(List, len(items))
		for i, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return Null{}, nil
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		return Number(f), nil
	}
}
