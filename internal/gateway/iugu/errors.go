package iugu

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

// APIError is a non-2xx reply from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("iugu: http %d: %s", e.StatusCode, e.Message)
}

// AsAPIError unwraps an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ErrorMessage builds a readable message from an error body. The gateway
// has answered with a string, a list of strings, an object of field -> list
// and a bare message over time; any of them yields something non-empty.
func ErrorMessage(doc gjson.Result, status int) string {
	msg, ok := extract.First(doc,
		fieldMessage("errors"),
		fieldMessage("error"),
		extract.StringAt("message", "errors.message"),
	)
	if ok && msg != "" {
		return msg
	}
	if status > 0 {
		return fmt.Sprintf("erro desconhecido do gateway (HTTP %d)", status)
	}
	return "erro desconhecido do gateway"
}

func fieldMessage(key string) extract.Strategy[string] {
	return func(doc gjson.Result) (string, bool) {
		v, ok := extract.Path(doc, key)
		if !ok {
			return "", false
		}
		s := flatten(v)
		return s, s != ""
	}
}

func flatten(v gjson.Result) string {
	switch {
	case v.IsObject():
		fields := v.Map()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			inner := flatten(fields[k])
			if inner == "" {
				continue
			}
			parts = append(parts, k+": "+inner)
		}
		return strings.Join(parts, "; ")
	case v.IsArray():
		items := v.Array()
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := flatten(it); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.Join(extract.Strings(v), ", ")
	}
}
