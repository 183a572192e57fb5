package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldErrors map[string]string

// FromBindError maps a bind error to json-path -> message. dst is the bound
// struct pointer; its json tags name the fields.
func FromBindError(err error, dst any) FieldErrors {
	out := FieldErrors{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fieldKey(dst, fe.StructNamespace())] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}

	out["_"] = "Corpo da requisição inválido."
	return out
}

// fieldKey turns "checkoutRequest.Payer.Email" into "payer.email".
func fieldKey(dst any, namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	t := reflect.TypeOf(dst)
	keys := make([]string, 0, len(parts))
	for _, name := range parts {
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			keys = append(keys, strings.ToLower(name))
			t = nil
			continue
		}
		f, ok := t.FieldByName(name)
		if !ok {
			keys = append(keys, strings.ToLower(name))
			t = nil
			continue
		}
		keys = append(keys, jsonName(f))
		t = f.Type
	}
	return strings.Join(keys, ".")
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" || tag == "-" {
		return strings.ToLower(f.Name)
	}
	return tag
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "Campo obrigatório."
	case "email":
		return "Informe um e-mail válido."
	case "min":
		return "Deve ter no mínimo " + param + "."
	case "max":
		return "Deve ter no máximo " + param + "."
	case "oneof":
		return "Valor deve ser um de: " + param + "."
	case "numeric":
		return "Use apenas números."
	default:
		return "Valor inválido."
	}
}
