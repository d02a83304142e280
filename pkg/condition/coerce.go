package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// isUnknown reports whether v is null, an empty string, or an empty array.
func isUnknown(v any) bool {
	if v == nil {
		return true
	}

	switch value := v.(type) {
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(toString(v)))
}

func toString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case time.Time:
		return value.Format(time.RFC3339)
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int8:
		return float64(value), true
	case int16:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	case uint32:
		return float64(value), true
	case uint64:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	case interface{ Float64() (float64, error) }:
		f, err := value.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

// toBool accepts booleans, "true"/"false" and 1/0. The second result is false for anything else.
func toBool(v any) (bool, bool) {
	switch value := v.(type) {
	case bool:
		return value, true
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}

		return false, false
	default:
		n, ok := toFloat(v)
		if !ok {
			return false, false
		}

		switch n {
		case 1:
			return true, true
		case 0:
			return false, true
		}

		return false, false
	}
}

func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	if items, ok := v.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}

// targets returns the comparison list of a condition: Values when set, otherwise Value
// (spread when it is itself an array).
func targets(values []any, value any) []any {
	if len(values) > 0 {
		return values
	}

	if items, ok := toSlice(value); ok {
		return items
	}

	if value == nil {
		return nil
	}

	return []any{value}
}

func normalizedSet(items []any) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[normalize(item)] = struct{}{}
	}

	return set
}
