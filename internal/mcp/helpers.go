package mcpserver

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"sftocsv/internal/record"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// argJSON returns args[key] as JSON text. Clients send either a string or
// an already-decoded value.
func argJSON(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// argRecords decodes a JSON array of objects at key.
func argRecords(args map[string]any, key string) (record.Collection, error) {
	text := argJSON(args, key)
	if text == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	var recs record.Collection
	if err := parseJSON(text, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return recs, nil
}

// argStrings accepts a JSON array or a comma/newline separated string.
func argStrings(args map[string]any, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '\n' }) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func argBool(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
