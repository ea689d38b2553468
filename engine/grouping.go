package engine

import (
	"strconv"
	"strings"
)

// ============================================================================
// GROUPING — Composite keys via RecordView
// ============================================================================
// A key is the position-ordered tuple of groupBy values, each stringified,
// length-prefixed and joined with a unit separator. Absent values map to a
// sentinel no present value can encode to, so every "missing" record of the
// same shape lands in the same group.
// Groups hold SubViews (index lists into parent view), in first-seen order.
// ============================================================================

const (
	keySeparator = "\x1f"
	missingKey   = "-"
)

// Group is one partition of a view.
type Group struct {
	// Key is the encoded composite key.
	Key string
	// Parts holds the raw key values, nil where the field was absent.
	Parts []any
	View  RecordView
}

// groupColumn names the output column holding key part i.
func groupColumn(i int) string {
	return "group_" + strconv.Itoa(i)
}

// GroupRecords partitions view by the composite key of fields.
// No fields = a single group holding every record (none for an empty view).
func GroupRecords(view RecordView, fields []string) []Group {
	return groupBy(view, len(fields), func(i int, parts []any) {
		for j, f := range fields {
			v, ok := view.Value(i, f)
			if !ok {
				v = nil
			}
			parts[j] = v
		}
	})
}

// groupBy is the shared partitioner. fill writes record i's key parts.
func groupBy(view RecordView, width int, fill func(i int, parts []any)) []Group {
	n := view.Len()
	if n == 0 {
		return nil
	}

	type bucket struct {
		parts   []any
		indices []int
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	encoded := make([]string, width)
	for i := 0; i < n; i++ {
		parts := make([]any, width)
		fill(i, parts)
		for j, p := range parts {
			encoded[j] = encodeKeyPart(p)
		}
		key := strings.Join(encoded, keySeparator)

		b, exists := buckets[key]
		if !exists {
			b = &bucket{parts: parts}
			buckets[key] = b
			order = append(order, key)
		}
		b.indices = append(b.indices, i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		groups = append(groups, Group{
			Key:   key,
			Parts: b.parts,
			View:  newSubView(view, b.indices),
		})
	}
	return groups
}

func encodeKeyPart(v any) string {
	if v == nil {
		return missingKey
	}
	s := Stringify(v)
	return strconv.Itoa(len(s)) + ":" + s
}

// groupValue is the output cell for one key part: the stringified value, or
// nil for an absent field.
func groupValue(v any) any {
	if v == nil {
		return nil
	}
	return Stringify(v)
}
