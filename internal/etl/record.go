package etl

import (
	"sftocsv/internal/record"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records, all destinations consume collections of them.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean"
}

// Schema describes the shape of a relation.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row flowing out of a source. Type is set by sources
// that return several object types at once (nested queries); the engine
// files such rows under "<input>.<Type>".
type Record struct {
	Type string
	Data *record.Record
}

// InferSchema builds a schema from the union of keys in records, in
// first-seen order. A field's type comes from its first non-null value.
func InferSchema(records record.Collection) *Schema {
	types := map[string]string{}
	var names []string
	for _, r := range records {
		r.Range(func(k string, v record.Value) bool {
			t, seen := types[k]
			if !seen {
				names = append(names, k)
				types[k] = ""
			}
			if t == "" && !record.IsNull(v) {
				types[k] = valueType(v)
			}
			return true
		})
	}

	fields := make([]Field, len(names))
	for i, n := range names {
		t := types[n]
		if t == "" {
			t = "text"
		}
		fields[i] = Field{Name: n, Type: t}
	}
	return &Schema{Fields: fields}
}

func valueType(v record.Value) string {
	switch v.(type) {
	case record.Number:
		return "number"
	case record.Bool:
		return "boolean"
	default:
		return "text"
	}
}
