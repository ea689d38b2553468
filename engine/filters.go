package engine

import (
	"strings"
)

// ============================================================================
// FILTERS — Predicate evaluation via RecordView
// ============================================================================
// Single-pass filter: checks ALL predicates per record in one loop.
// Operands are normalized once up front (lower-cased strings, parsed numbers,
// lookup sets). Returns a SubView (index list into parent) — zero data copy.
// ============================================================================

// Operator names a filter predicate.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Filter is one predicate over a record field.
type Filter struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=equals not_equals contains not_contains starts_with ends_with greater_than less_than between in not_in"`
	Value    any      `json:"value"`
}

// predicate evaluates a resolved field value against a compiled operand.
type predicate func(c *compiledFilter, actual any, present bool) bool

var operatorTable = map[Operator]predicate{
	OpEquals:      matchEquals,
	OpNotEquals:   func(c *compiledFilter, a any, p bool) bool { return !matchEquals(c, a, p) },
	OpContains:    matchContains,
	OpNotContains: func(c *compiledFilter, a any, p bool) bool { return !matchContains(c, a, p) },
	OpStartsWith: func(c *compiledFilter, a any, p bool) bool {
		return p && strings.HasPrefix(lowerString(a), c.text)
	},
	OpEndsWith: func(c *compiledFilter, a any, p bool) bool {
		return p && strings.HasSuffix(lowerString(a), c.text)
	},
	OpGreaterThan: func(c *compiledFilter, a any, p bool) bool {
		n, ok := numericActual(c, a, p)
		return ok && n > c.lo
	},
	OpLessThan: func(c *compiledFilter, a any, p bool) bool {
		n, ok := numericActual(c, a, p)
		return ok && n < c.lo
	},
	OpBetween: func(c *compiledFilter, a any, p bool) bool {
		n, ok := numericActual(c, a, p)
		return ok && n >= c.lo && n <= c.hi
	},
	OpIn:    matchIn,
	OpNotIn: func(c *compiledFilter, a any, p bool) bool { return !matchIn(c, a, p) },
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	_, ok := operatorTable[o]
	return ok
}

// Matches evaluates the filter against one record.
// Unknown operators never match; ValidateFilters rejects them up front.
func (f Filter) Matches(rec Record) bool {
	c := compileFilter(f)
	v, ok := Resolve(rec, f.Field)
	return c.eval(v, ok)
}

// ApplyFilters returns a view of records matching every filter (logical AND).
// No filters = no restriction (returns original view).
func ApplyFilters(view RecordView, filters []Filter) RecordView {
	if len(filters) == 0 {
		return view
	}

	compiled := compileFilters(filters)
	return filterView(view, func(i int) bool {
		return matchAll(compiled, func(field string) (any, bool) { return view.Value(i, field) })
	})
}

func compileFilters(filters []Filter) []*compiledFilter {
	compiled := make([]*compiledFilter, len(filters))
	for i, f := range filters {
		compiled[i] = compileFilter(f)
	}
	return compiled
}

// matchAll is the AND of compiled filters; get resolves a field of the
// candidate record.
func matchAll(compiled []*compiledFilter, get func(field string) (any, bool)) bool {
	for _, c := range compiled {
		v, ok := get(c.field)
		if !c.eval(v, ok) {
			return false
		}
	}
	return true
}

// ============================================================================
// COMPILED OPERANDS
// ============================================================================

type compiledFilter struct {
	field    string
	pred     predicate
	nilValue bool
	text     string          // lower-cased operand
	lo, hi   float64         // numeric operand / range
	numOK    bool            // operand coerced to a number (or a valid range)
	set      map[string]bool // lower-cased members for in / not_in
}

func compileFilter(f Filter) *compiledFilter {
	c := &compiledFilter{
		field:    f.Field,
		pred:     operatorTable[f.Operator],
		nilValue: f.Value == nil,
		text:     lowerString(f.Value),
	}

	switch f.Operator {
	case OpGreaterThan, OpLessThan:
		c.lo, c.numOK = CoerceNumber(f.Value)
	case OpBetween:
		c.lo, c.hi, c.numOK = rangeOperand(f.Value)
	case OpIn, OpNotIn:
		items, _ := listOperand(f.Value)
		c.set = toLowerSet(items)
	}
	return c
}

func (c *compiledFilter) eval(actual any, present bool) bool {
	if c.pred == nil {
		return false
	}
	return c.pred(c, actual, present)
}

func matchEquals(c *compiledFilter, actual any, present bool) bool {
	if !present {
		return c.nilValue
	}
	if c.nilValue {
		return false
	}
	return lowerString(actual) == c.text
}

func matchContains(c *compiledFilter, actual any, present bool) bool {
	return present && strings.Contains(lowerString(actual), c.text)
}

func matchIn(c *compiledFilter, actual any, present bool) bool {
	return present && c.set[lowerString(actual)]
}

func numericActual(c *compiledFilter, actual any, present bool) (float64, bool) {
	if !present || !c.numOK {
		return 0, false
	}
	return CoerceNumber(actual)
}

// rangeOperand reads a two-element [low, high] operand.
func rangeOperand(v any) (lo, hi float64, ok bool) {
	items, isList := listOperand(v)
	if !isList || len(items) != 2 {
		return 0, 0, false
	}
	lo, okLo := CoerceNumber(items[0])
	hi, okHi := CoerceNumber(items[1])
	return lo, hi, okLo && okHi
}

// listOperand normalizes the enumerable operand shapes decoders produce.
func listOperand(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func lowerString(v any) string {
	return strings.ToLower(Stringify(v))
}

// toLowerSet converts operand members to a lowercase lookup set.
func toLowerSet(items []any) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[lowerString(item)] = true
	}
	return set
}
