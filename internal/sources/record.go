package sources

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a loosely typed upstream object. Values keep the shapes produced by
// encoding/json: map[string]any, []any, string, float64, bool and nil.
type Record map[string]any

// Lookup returns the value of the first candidate key that is present and non-nil.
func (r Record) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first candidate key holding a non-blank string.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Int returns the first candidate key holding an integer, accepting JSON numbers
// and numeric strings such as "1,204". Unparseable values fall through to 0.
func (r Record) Int(keys ...string) int64 {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if n, ok := toInt(v); ok {
			return n
		}
		return 0
	}
	return 0
}

// Sub returns a nested object, or nil.
func (r Record) Sub(key string) Record {
	return asRecord(r[key])
}

// Path walks nested objects and arrays. Segments that address an array are
// decimal indexes.
func (r Record) Path(segments ...string) any {
	var cur any = map[string]any(r)
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case Record:
			cur = node[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// PathString is Path narrowed to a string.
func (r Record) PathString(segments ...string) string {
	s, _ := r.Path(segments...).(string)
	return s
}

// PathRecord is Path narrowed to an object.
func (r Record) PathRecord(segments ...string) Record {
	return asRecord(r.Path(segments...))
}

// PathList is Path narrowed to an array.
func (r Record) PathList(segments ...string) []any {
	l, _ := r.Path(segments...).([]any)
	return l
}

func asRecord(v any) Record {
	switch m := v.(type) {
	case map[string]any:
		return Record(m)
	case Record:
		return m
	}
	return nil
}

// AsRecord narrows an array element to an object, or nil.
func AsRecord(v any) Record {
	return asRecord(v)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return 0, false
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
