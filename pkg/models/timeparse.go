package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
}

// ParseTime converts a record value into a time. Strings are parsed against the common layouts,
// numbers are unix seconds (or milliseconds when they are too large to be seconds).
func ParseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}

		return *v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}

		for _, layout := range timeLayouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				return t, true
			}
		}

		n, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return unixTime(n), true
		}

		return time.Time{}, false
	case float64:
		return unixTime(v), true
	case float32:
		return unixTime(float64(v)), true
	case int:
		return unixTime(float64(v)), true
	case int64:
		return unixTime(float64(v)), true
	case int32:
		return unixTime(float64(v)), true
	default:
		return time.Time{}, false
	}
}

func unixTime(n float64) time.Time {
	// Anything past year ~5138 in seconds is treated as milliseconds.
	if math.Abs(n) >= 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}

	return time.Unix(int64(n), 0).UTC()
}
