// Package extract pulls values out of loosely typed JSON documents.
//
// Gateways put the same semantic field under different keys depending on
// the endpoint, the event type and the API version. Callers describe each
// observed shape as a Strategy and let First try them in order. Documents
// are gjson results; paths use gjson dot syntax.
package extract

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("extract: invalid json")

// Strategy tries to read a T out of a JSON document.
type Strategy[T any] func(doc gjson.Result) (T, bool)

// First returns the result of the first strategy that matches.
func First[T any](doc gjson.Result, strategies ...Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Decode validates body and returns it as a document.
func Decode(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrInvalidJSON
	}
	return gjson.ParseBytes(body), nil
}

// Of encodes a Go value and returns it as a document. Values that cannot be
// encoded give an empty document.
func Of(v any) gjson.Result {
	b, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(b)
}

// Path reads the value at a dotted path. The empty path returns doc itself.
// Missing values and JSON null do not match.
func Path(doc gjson.Result, path string) (gjson.Result, bool) {
	r := doc
	if path != "" {
		r = doc.Get(path)
	}
	if !r.Exists() || r.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return r, true
}

// Key reads a single object member whose name may contain path syntax.
func Key(doc gjson.Result, key string) (gjson.Result, bool) {
	if !doc.IsObject() {
		return gjson.Result{}, false
	}
	var out gjson.Result
	doc.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	if !out.Exists() || out.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return out, true
}

// String reads a non-empty scalar at path as a string.
func String(doc gjson.Result, path string) (string, bool) {
	v, ok := Path(doc, path)
	if !ok {
		return "", false
	}
	s := scalarString(v)
	if s == "" {
		return "", false
	}
	return s, true
}

// Object reads a JSON object at path.
func Object(doc gjson.Result, path string) (gjson.Result, bool) {
	v, ok := Path(doc, path)
	if !ok || !v.IsObject() {
		return gjson.Result{}, false
	}
	return v, true
}

// Bool reads a boolean at path. The strings "true" and "false" are accepted.
func Bool(doc gjson.Result, path string) (bool, bool) {
	v, ok := Path(doc, path)
	if !ok {
		return false, false
	}
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return parsed, err == nil
	}
	return false, false
}

// StringAt is a Strategy reading the first non-empty string among paths.
func StringAt(paths ...string) Strategy[string] {
	return func(doc gjson.Result) (string, bool) {
		for _, p := range paths {
			if s, ok := String(doc, p); ok {
				return s, true
			}
		}
		return "", false
	}
}

// ObjectAt is a Strategy reading the object at path when it has every key
// in required.
func ObjectAt(path string, required ...string) Strategy[gjson.Result] {
	return func(doc gjson.Result) (gjson.Result, bool) {
		obj, ok := Object(doc, path)
		if !ok {
			return gjson.Result{}, false
		}
		for _, k := range required {
			if _, ok := String(obj, k); !ok {
				return gjson.Result{}, false
			}
		}
		return obj, true
	}
}

// Strings flattens a scalar or an array of scalars into strings.
func Strings(v gjson.Result) []string {
	if v.IsArray() {
		var out []string
		for _, it := range v.Array() {
			if s := scalarString(it); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := scalarString(v); s != "" {
		return []string{s}
	}
	return nil
}

// scalarString keeps numbers as written so cents and ids are not reformatted.
func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case gjson.True, gjson.False:
		return v.String()
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time reads a timestamp or a plain date at path. Plain dates are UTC midnight.
func Time(doc gjson.Result, path string) (time.Time, bool) {
	s, ok := String(doc, path)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// TimeAt is a Strategy reading a time at path.
func TimeAt(path string) Strategy[time.Time] {
	return func(doc gjson.Result) (time.Time, bool) { return Time(doc, path) }
}
