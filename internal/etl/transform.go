package etl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/ohler55/ojg/jp"

	"sftocsv/internal/record"
)

// ── Transformer ────────────────────────────────────────────
// Transformers modify records in-flight between a relation and its
// consumer. Each takes a record and returns a (possibly modified) record
// and whether to keep it.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(*record.Record) (*record.Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(*record.Record) (*record.Record, bool)

func (f TransformerFunc) Transform(r *record.Record) (*record.Record, bool) { return f(r) }

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform drops records where the given field does not match the value.
// A record without the field is dropped.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains" | "empty" | "not_empty"
	Value any
}

func (t *FilterTransform) Transform(r *record.Record) (*record.Record, bool) {
	v, ok := r.Get(t.Field)
	switch t.Op {
	case "empty":
		return r, !ok || record.IsNull(v) || record.Format(v) == ""
	case "not_empty":
		return r, ok && !record.IsNull(v) && record.Format(v) != ""
	}
	if !ok {
		return r, false
	}
	want := record.Format(record.ValueOf(t.Value))
	switch t.Op {
	case "eq":
		return r, record.Format(v) == want
	case "neq":
		return r, record.Format(v) != want
	case "contains":
		return r, strings.Contains(record.Format(v), want)
	case "gt":
		return r, toFloat(v) > toFloat(record.ValueOf(t.Value))
	case "lt":
		return r, toFloat(v) < toFloat(record.ValueOf(t.Value))
	default:
		return r, true
	}
}

// RenameTransform renames fields in place, keeping their position.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r *record.Record) (*record.Record, bool) {
	out := record.New()
	r.Range(func(k string, v record.Value) bool {
		if nk, ok := t.Mapping[k]; ok {
			k = nk
		}
		out.Set(k, v)
		return true
	})
	return out, true
}

// SelectTransform keeps only the specified fields, in the given order.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r *record.Record) (*record.Record, bool) {
	out := record.New()
	for _, f := range t.Fields {
		if v, ok := r.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out, true
}

// DropTransform removes the named fields.
type DropTransform struct {
	Fields []string
}

func (t *DropTransform) Transform(r *record.Record) (*record.Record, bool) {
	for _, f := range t.Fields {
		r.Delete(f)
	}
	return r, true
}

// DedupeTransform drops records with duplicate values for the given key.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r *record.Record) (*record.Record, bool) {
	v, _ := r.Get(t.Key)
	k := record.Format(v)
	if t.seen[k] {
		return r, false
	}
	t.seen[k] = true
	return r, true
}

// ComputeTransform adds or overwrites fields using simple templates.
// Expression format: {field_name} references are substituted with the
// field's cell text.
type ComputeTransform struct {
	Columns []ComputeColumn
}

type ComputeColumn struct {
	Name       string
	Expression string
}

func (t *ComputeTransform) Transform(r *record.Record) (*record.Record, bool) {
	for _, col := range t.Columns {
		if col.Name == "" || col.Expression == "" {
			continue
		}
		r.Set(col.Name, evaluateExpr(r, col.Expression))
	}
	return r, true
}

// evaluateExpr resolves {field} references. A result that parses as a
// number becomes a Number.
func evaluateExpr(r *record.Record, expr string) record.Value {
	resolved := expr
	r.Range(func(k string, v record.Value) bool {
		placeholder := "{" + k + "}"
		if strings.Contains(resolved, placeholder) {
			resolved = strings.ReplaceAll(resolved, placeholder, record.Format(v))
		}
		return true
	})
	if f, err := strconv.ParseFloat(resolved, 64); err == nil {
		return record.Number(f)
	}
	return record.String(resolved)
}

// ExtractTransform pulls values out of a nested field with JSONPath
// expressions and stores them as top-level fields. The source field may hold
// a nested record, a list, or a JSON document as text.
type ExtractTransform struct {
	SourceField string
	Paths       []ExtractPath
	Drop        bool // remove SourceField afterwards
}

type ExtractPath struct {
	Alias string
	Expr  jp.Expr
}

func (t *ExtractTransform) Transform(r *record.Record) (*record.Record, bool) {
	v, ok := r.Get(t.SourceField)
	if !ok {
		return r, true
	}
	doc := record.Native(v)
	if s, isText := v.(record.String); isText {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			doc = parsed
		}
	}
	for _, p := range t.Paths {
		got := p.Expr.Get(doc)
		switch len(got) {
		case 0:
			r.Set(p.Alias, record.Null{})
		case 1:
			r.Set(p.Alias, record.ValueOf(got[0]))
		default:
			r.Set(p.Alias, record.ValueOf(got))
		}
	}
	if t.Drop {
		r.Delete(t.SourceField)
	}
	return r, true
}

// SortTransform sorts all collected records by a field.
// This is a batch transform: it is a pass-through per record and the
// engine applies the sort once the relation is complete.
type SortTransform struct {
	Field     string
	Direction string // "asc" | "desc"
}

func (t *SortTransform) Transform(r *record.Record) (*record.Record, bool) {
	return r, true
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r *record.Record) (*record.Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// TypeCastTransform converts a field's value to a target type.
type TypeCastTransform struct {
	Field    string
	CastType string // "number" | "string" | "bool"
}

func (t *TypeCastTransform) Transform(r *record.Record) (*record.Record, bool) {
	v, ok := r.Get(t.Field)
	if !ok || record.IsNull(v) {
		return r, true
	}
	switch t.CastType {
	case "number":
		r.Set(t.Field, record.Number(toFloat(v)))
	case "string":
		r.Set(t.Field, record.String(record.Format(v)))
	case "bool":
		r.Set(t.Field, record.Bool(toBool(v)))
	}
	return r, true
}

func toBool(v record.Value) bool {
	switch b := v.(type) {
	case record.Bool:
		return bool(b)
	case record.String:
		lower := strings.ToLower(string(b))
		return lower == "true" || lower == "yes" || lower == "1"
	case record.Number:
		return b != 0
	default:
		return false
	}
}

// ── Batch Transforms ──────────────────────────────────────

// ApplyBatchSort sorts records if a SortTransform exists in the chain.
// The sort is stable.
func ApplyBatchSort(records record.Collection, ts []Transformer) record.Collection {
	for _, t := range ts {
		if st, ok := t.(*SortTransform); ok && st.Field != "" {
			sorted := make(record.Collection, len(records))
			copy(sorted, records)
			sortRecords(sorted, st.Field, st.Direction)
			return sorted
		}
	}
	return records
}

func sortRecords(records record.Collection, field, direction string) {
	dir := 1
	if direction == "desc" {
		dir = -1
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i].Get(field)
		b, _ := records[j].Get(field)
		return compareValues(a, b)*dir < 0
	})
}

func compareValues(a, b record.Value) int {
	fa, aOk := toFloatSafe(a)
	fb, bOk := toFloatSafe(b)
	if aOk && bOk {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(record.Format(a), record.Format(b))
}

func toFloatSafe(v record.Value) (float64, bool) {
	switch n := v.(type) {
	case record.Number:
		return float64(n), true
	case record.String:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r *record.Record, ts []Transformer) (*record.Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

// TransformAll runs the chain over every record, then applies any batch sort.
func TransformAll(records record.Collection, ts []Transformer) record.Collection {
	if len(ts) == 0 {
		return records
	}
	out := make(record.Collection, 0, len(records))
	for _, r := range records {
		if t, keep := ApplyTransformers(r, ts); keep {
			out = append(out, t)
		}
	}
	return ApplyBatchSort(out, ts)
}

func toFloat(v record.Value) float64 {
	f, _ := toFloatSafe(v)
	return f
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// ── Declarative config ────────────────────────────────────

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// BuildTransformers converts declarative TransformConfig into Transformer
// instances. Dedupe on dedupeKey, if set, runs last.
func BuildTransformers(configs []TransformConfig, dedupeKey string) ([]Transformer, error) {
	var ts []Transformer

	for i, tc := range configs {
		cfg := SourceConfig(tc.Config)
		switch tc.Type {
		case "filter":
			field, op := cfg.String("field"), cfg.String("op")
			if field == "" || op == "" {
				return nil, fmt.Errorf("transform %d (filter): field and op are required", i)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: cfg["value"]})

		case "rename":
			mapping, ok := cfg["mapping"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("transform %d (rename): mapping is required", i)
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "select", "drop":
			fields := cfg.Strings("fields")
			if len(fields) == 0 {
				return nil, fmt.Errorf("transform %d (%s): fields are required", i, tc.Type)
			}
			if tc.Type == "select" {
				ts = append(ts, &SelectTransform{Fields: fields})
			} else {
				ts = append(ts, &DropTransform{Fields: fields})
			}

		case "dedupe":
			key := cfg.String("key")
			if key == "" {
				return nil, fmt.Errorf("transform %d (dedupe): key is required", i)
			}
			ts = append(ts, NewDedupeTransform(key))

		case "compute":
			columns, _ := cfg["columns"].([]any)
			var cols []ComputeColumn
			for _, c := range columns {
				if cm, ok := c.(map[string]any); ok {
					name, _ := cm["name"].(string)
					expr, _ := cm["expression"].(string)
					if name != "" && expr != "" {
						cols = append(cols, ComputeColumn{Name: name, Expression: expr})
					}
				}
			}
			if len(cols) == 0 {
				return nil, fmt.Errorf("transform %d (compute): columns are required", i)
			}
			ts = append(ts, &ComputeTransform{Columns: cols})

		case "extract":
			t, err := buildExtract(cfg)
			if err != nil {
				return nil, fmt.Errorf("transform %d (extract): %w", i, err)
			}
			ts = append(ts, t)

		case "sort":
			field := cfg.String("field")
			if field == "" {
				return nil, fmt.Errorf("transform %d (sort): field is required", i)
			}
			direction := cfg.String("direction")
			if direction == "" {
				direction = "asc"
			}
			ts = append(ts, &SortTransform{Field: field, Direction: direction})

		case "limit":
			count := cfg.Int("count", 0)
			if count <= 0 {
				return nil, fmt.Errorf("transform %d (limit): count must be positive", i)
			}
			ts = append(ts, NewLimitTransform(count))

		case "type_cast":
			field, castType := cfg.String("field"), cfg.String("castType")
			if field == "" || castType == "" {
				return nil, fmt.Errorf("transform %d (type_cast): field and castType are required", i)
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: castType})

		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}

	if dedupeKey != "" {
		ts = append(ts, NewDedupeTransform(dedupeKey))
	}
	return ts, nil
}

func buildExtract(cfg SourceConfig) (*ExtractTransform, error) {
	source := cfg.String("sourceField")
	if source == "" {
		return nil, fmt.Errorf("sourceField is required")
	}
	fields, _ := cfg["fields"].([]any)
	t := &ExtractTransform{SourceField: source, Drop: cfg.Bool("drop", false)}
	for _, f := range fields {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		path, _ := fm["path"].(string)
		alias, _ := fm["alias"].(string)
		if path == "" {
			continue
		}
		x, err := jp.ParseString(path)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath %q: %w", path, err)
		}
		if alias == "" {
			alias = strings.TrimPrefix(path, "$.")
		}
		t.Paths = append(t.Paths, ExtractPath{Alias: alias, Expr: x})
	}
	if len(t.Paths) == 0 {
		return nil, fmt.Errorf("fields are required")
	}
	return t, nil
}
