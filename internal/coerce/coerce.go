// Package coerce converts loosely-typed store field values into numbers and
// dates. Every function is total: malformed input yields a neutral default,
// never an error.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Date layouts accepted by ToDate, tried in order. Source records carry
// either bare calendar dates or ISO timestamps, with or without an offset.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ToNumber parses a currency-formatted value into a float64.
// Commas and dollar signs are stripped. Returns 0.0 on any failure.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0.0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}

	s := strings.TrimSpace(Stringify(v))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		// ParseFloat accepts "nan" and "inf" tokens; amounts must stay
		// finite so comparisons and totals behave.
		return 0.0
	}
	return f
}

// ToDate parses an ISO date or date-time string into a calendar date.
// The boolean is false when no layout matches; the zero time is the
// "no date" sentinel.
func ToDate(v any) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	if t, ok := v.(time.Time); ok {
		return truncate(t), true
	}

	s := strings.TrimSpace(Stringify(v))
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncate(t), true
		}
	}
	return time.Time{}, false
}

// DaysSince returns today minus the parsed date in whole days.
// False when the value does not parse as a date.
func DaysSince(v any, today time.Time) (int, bool) {
	d, ok := ToDate(v)
	if !ok {
		return 0, false
	}
	return WholeDays(d, today), true
}

// WholeDays returns the number of whole calendar days from d to today.
func WholeDays(d, today time.Time) int {
	return int(truncate(today).Sub(truncate(d)).Hours() / 24)
}

// Day truncates a timestamp to its UTC calendar date. Window arithmetic
// compares whole days, never times of day.
func Day(t time.Time) time.Time {
	return truncate(t)
}

// Stringify renders an arbitrary field value as a string without failing.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; avoid a trailing ".000000".
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
