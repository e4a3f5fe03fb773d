package record

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ── Value ──────────────────────────────────────────────────
// Tagged union for field values. Variants: Null, Bool, Number, String,
// List and *Record. Every value a source produces is normalized into one
// of these before it reaches the join or flatten stages.

// Value is a sealed interface; only the variants in this package implement it.
type Value interface {
	isValue()
}

// Null is the absent/null value.
type Null struct{}

// String is a text value.
type String string

// Number is a numeric value. All numbers are carried as float64.
type Number float64

// Bool is a boolean value.
type Bool bool

// List is an ordered sequence of values.
type List []Value

func (Null) isValue()    {}
func (String) isValue()  {}
func (Number) isValue()  {}
func (Bool) isValue()    {}
func (List) isValue()    {}
func (*Record) isValue() {}

// MarshalJSON renders Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal compares two values structurally. Values of different variants are
// never equal, so String("1") and Number(1) do not match.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Record:
		bv, ok := b.(*Record)
		return ok && av.Equal(bv)
	default:
		return false
	}
}

// Format renders a value as a flat string, the way it appears in a CSV cell.
// Null renders empty; lists and records render as compact JSON.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Number:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// ValueOf converts a plain Go value into a Value. Maps become records with
// their keys sorted, since Go maps carry no order.
func ValueOf(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case string:
		return String(val)
	case []byte:
		return String(val)
	case bool:
		return Bool(val)
	case float64:
		return Number(val)
	case float32:
		return Number(val)
	case int:
		return Number(val)
	case int8:
		return Number(val)
	case int16:
		return Number(val)
	case int32:
		return Number(val)
	case int64:
		return Number(val)
	case uint:
		return Number(val)
	case uint8:
		return Number(val)
	case uint16:
		return Number(val)
	case uint32:
		return Number(val)
	case uint64:
		return Number(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return String(val)
		}
		return Number(f)
	case time.Time:
		return String(val.Format(time.RFC3339))
	case []any:
		list := make(List, len(val))
		for i, item := range val {
			list[i] = ValueOf(item)
		}
		return list
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := New()
		for _, k := range keys {
			rec.Set(k, ValueOf(val[k]))
		}
		return rec
	default:
		return String(fmt.Sprint(val))
	}
}

// Native converts a Value back into plain Go values (map, slice, scalars).
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Native(item)
		}
		return out
	case *Record:
		return val.Map()
	default:
		return nil
	}
}

// CloneValue deep-copies lists and records; scalars are returned as is.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case *Record:
		return val.Clone()
	default:
		return v
	}
}
