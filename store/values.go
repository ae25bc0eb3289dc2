package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// normalizeValue maps the accepted property value types onto the three
// stored forms: string, []string and int64.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []string:
		return slices.Clone(x), nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported property value type %T", v)
	}
}

// encodeValue renders a property value as JSON text. HTML escaping is
// off so IRIs with & or < stay readable in the database.
func encodeValue(v any) (string, error) {
	n, err := normalizeValue(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding property value: %w", err)
	}
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			str, ok := e.(string)
			if !ok {
				return raw, nil
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return raw, nil
	}
}

// quoteLiteral renders s as an SQL string literal. Keys are inlined so
// SQLite can match them against partial indexes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
