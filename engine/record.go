package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// RECORD — Generic nested data row + dot-path field access
// ============================================================================
// A Record is a string-keyed mapping whose values may themselves be nested
// mappings. Paths like "user.geo.region" walk those mappings one segment at a
// time. The engine reads records, it never writes to them.
// ============================================================================

// Record is one unit of input data.
type Record map[string]any

// timestampFields are tried in order when a record's own event time is needed.
var timestampFields = []string{"timestamp", "createdAt", "date"}

// Resolve walks a dot-separated path through rec.
// It reports false when any segment is missing, when an intermediate value is
// not a mapping, or when the final value is nil.
func Resolve(rec Record, path string) (any, bool) {
	if rec == nil || path == "" {
		return nil, false
	}

	var cur any = rec
	rest := path
	for {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		seg, tail, more := strings.Cut(rest, ".")
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		if !more {
			if v == nil {
				return nil, false
			}
			return v, true
		}
		cur, rest = v, tail
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// ResolveTime resolves path and interprets the value as a point in time.
func ResolveTime(rec Record, path string, loc *time.Location) (time.Time, bool) {
	v, ok := Resolve(rec, path)
	if !ok {
		return time.Time{}, false
	}
	return ToTime(v, loc)
}

// BestEffortTimestamp returns the record's own event time, looking at
// "timestamp", then "createdAt", then "date". present is false when none of
// those fields exist; ok is false when the first present one cannot be read.
func BestEffortTimestamp(rec Record, loc *time.Location) (t time.Time, present, ok bool) {
	return viewTimestamp(&SliceView{records: []Record{rec}}, 0, loc)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ToTime converts a field value into a time. Numbers are epoch milliseconds.
// Strings are parsed as RFC 3339 or a common date layout down to a bare year,
// zone-less strings in loc; a string of more than four digits that matches no
// layout is read as epoch milliseconds. A nil loc means UTC.
func ToTime(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch x := v.(type) {
	case time.Time:
		return x.In(loc), true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.In(loc), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.In(loc), true
			}
		}
		if isMillis(s) {
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.UnixMilli(ms).In(loc), true
			}
		}
		return time.Time{}, false
	}
	if ms, ok := ToNumber(v); ok {
		return fromMillis(ms, loc)
	}
	return time.Time{}, false
}

// isMillis reports whether s is an optionally signed run of more than four
// digits.
func isMillis(s string) bool {
	digits := strings.TrimPrefix(s, "-")
	if len(digits) <= 4 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fromMillis(ms float64, loc *time.Location) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).In(loc), true
}

// Stringify renders a field value the way grouping keys and string filters
// see it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case interface{ String() string }:
		return x.String()
	}
	if f, ok := ToNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
