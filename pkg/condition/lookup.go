package condition

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/dukex/petflow/pkg/models"
)

// Lookup resolves a dot-separated path against a record. Each segment is tried as written,
// then in camelCase, then in snake_case, before the field is considered unknown.
func Lookup(record map[string]any, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	var current any = record

	for _, segment := range strings.Split(path, ".") {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func child(parent any, segment string) (any, bool) {
	switch node := parent.(type) {
	case map[string]any:
		return field(node, segment)
	case models.Record:
		return field(node, segment)
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(node) {
			return nil, false
		}

		return node[index], true
	default:
		rv := reflect.ValueOf(parent)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			for _, key := range rv.MapKeys() {
				m[key.String()] = rv.MapIndex(key).Interface()
			}

			return field(m, segment)
		}

		return nil, false
	}
}

func field(m map[string]any, key string) (any, bool) {
	for _, candidate := range [...]string{key, snakeToCamel(key), camelToSnake(key)} {
		if v, ok := m[candidate]; ok {
			return v, true
		}
	}

	return nil, false
}

func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}

	var b strings.Builder

	upper := false

	for i, r := range s {
		if r == '_' {
			upper = i > 0

			continue
		}

		if upper {
			b.WriteRune(unicode.ToUpper(r))

			upper = false

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

func camelToSnake(s string) string {
	var b strings.Builder

	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(r))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}
