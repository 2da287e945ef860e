// Package convert maps decoded Moodle JSON values to domain types and request parameters.
package convert

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/and161185/moodle-elt/internal/model"
)

// --- identifiers ---

// Int64 interprets a decoded JSON value as an integer identifier.
// It accepts json.Number, native numbers and numeric strings; fractional values are rejected.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return floatToInt(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// PositiveID returns rec[key] as an identifier when it is present and > 0.
func PositiveID(rec model.Record, key string) (int64, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, false
	}
	id, ok := Int64(v)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// FormatID renders an identifier as a request parameter.
func FormatID(id int64) string { return strconv.FormatInt(id, 10) }

// --- records ---

// Records keeps the JSON objects of a decoded array as records.
// It returns the records and the number of dropped non-object elements.
func Records(items []any) ([]model.Record, int) {
	out := make([]model.Record, 0, len(items))
	dropped := 0
	for _, it := range items {
		switch obj := it.(type) {
		case map[string]any:
			out = append(out, model.Record(obj))
		case model.Record:
			out = append(out, obj)
		default:
			dropped++
		}
	}
	return out, dropped
}

// Unwrap returns the array held under key when items is a single object carrying it.
// Any other shape is returned unchanged.
func Unwrap(items []any, key string) []any {
	if len(items) != 1 {
		return items
	}
	obj, ok := items[0].(map[string]any)
	if !ok {
		return items
	}
	inner, ok := obj[key]
	if !ok {
		return items
	}
	arr, ok := inner.([]any)
	if !ok {
		return []any{}
	}
	return arr
}
