package casefile

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Finding is a loosely-typed result from an enrichment or analysis source.
// Values follow encoding/json decoding: numbers are float64, objects are
// map[string]any.
type Finding map[string]any

// Has reports whether key is present and not null.
func (f Finding) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// String returns key as a string, rendering numbers when needed.
func (f Finding) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Float returns key as a number. Numeric strings such as "12,000" parse.
func (f Finding) Float(key string) float64 {
	return toFloat(f[key])
}

// Bool returns key as a boolean. The strings "true" and "yes" count as true.
func (f Finding) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes"
	default:
		return false
	}
}

// Strings returns key as a string slice, dropping non-string elements.
func (f Finding) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// List returns key as a list of objects.
func (f Finding) List(key string) []Finding {
	switch v := f[key].(type) {
	case []Finding:
		return v
	case []any:
		out := make([]Finding, 0, len(v))
		for _, item := range v {
			if m, ok := asMap(item); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Len returns the length of key when it is a list, or 0.
func (f Finding) Len(key string) int {
	switch v := f[key].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []Finding:
		return len(v)
	default:
		return 0
	}
}

// Object returns key as a nested Finding, or an empty one.
func (f Finding) Object(key string) Finding {
	if m, ok := asMap(f[key]); ok {
		return m
	}
	return Finding{}
}

// HasError reports whether the source flagged its own failure.
func (f Finding) HasError() bool {
	return f.Has("error")
}

// JSON renders the finding compactly, truncated to max bytes when max > 0.
func (f Finding) JSON(max int) string {
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	if max > 0 && len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

func asMap(v any) (Finding, bool) {
	switch m := v.(type) {
	case Finding:
		return m, true
	case map[string]any:
		return Finding(m), true
	default:
		return nil, false
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		s := strings.NewReplacer(",", "", "$", "", " ", "").Replace(n)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
