package engine

import "strings"

// ============================================================================
// RECORD VIEW — Zero-Copy Data Access Interface
// ============================================================================
// The engine never owns caller data. It reads through this interface.
//
// Implementations:
//   SliceView      — wraps []Record (JSON, CSV, ad-hoc)
//   DomainView[T]  — reads typed structs via accessor functions (zero-copy)
//   SubView        — filtered subset or group (indices into parent, zero-copy)
// ============================================================================

// RecordView provides indexed access to a dataset.
// Value is called in tight loops — keep implementations fast.
type RecordView interface {
	Len() int
	// Value resolves a dot-path on the record at index.
	Value(index int, path string) (any, bool)
	// Record returns the record at index.
	Record(index int) Record
}

// ============================================================================
// SLICE VIEW — wraps []Record
// ============================================================================

// SliceView wraps a []Record slice as a RecordView.
type SliceView struct {
	records []Record
}

// NewSliceView creates a RecordView from a []Record slice.
func NewSliceView(records []Record) RecordView {
	return &SliceView{records: records}
}

func (v *SliceView) Len() int { return len(v.records) }

func (v *SliceView) Value(i int, path string) (any, bool) {
	if i < 0 || i >= len(v.records) {
		return nil, false
	}
	return Resolve(v.records[i], path)
}

func (v *SliceView) Record(i int) Record {
	if i < 0 || i >= len(v.records) {
		return nil
	}
	return v.records[i]
}

// ============================================================================
// SUB VIEW — filtered subset (zero-copy)
// ============================================================================

// SubView is a subset of a parent RecordView.
// Holds indices into the parent — no data copy.
type SubView struct {
	parent  RecordView
	indices []int
}

func newSubView(parent RecordView, indices []int) RecordView {
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Len() int { return len(v.indices) }

func (v *SubView) Value(i int, path string) (any, bool) {
	if i < 0 || i >= len(v.indices) {
		return nil, false
	}
	return v.parent.Value(v.indices[i], path)
}

func (v *SubView) Record(i int) Record {
	if i < 0 || i >= len(v.indices) {
		return nil
	}
	return v.parent.Record(v.indices[i])
}

// filterView keeps the records for which keep returns true.
func filterView(view RecordView, keep func(i int) bool) RecordView {
	n := view.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	if len(indices) == n {
		return view
	}
	return newSubView(view, indices)
}

// ============================================================================
// DOMAIN ADAPTER — Zero-copy typed struct access
// ============================================================================
//
// Usage:
//
//	adapter := engine.NewDomainAdapter[Event]().
//	    Field("user", func(e Event) any { return e.UserID }).
//	    Field("amount", func(e Event) any { return e.Amount }).
//	    Field("geo", func(e Event) any { return map[string]any{"region": e.Region} })
//
//	view := adapter.Bind(events)
//	result, _ := engine.Aggregate(view, cfg)
//
// ============================================================================

// DomainAdapter builds a RecordView from typed structs.
// Declare once, bind many times.
type DomainAdapter[T any] struct {
	order  []string
	fields map[string]func(T) any
}

// NewDomainAdapter creates a new adapter for type T.
func NewDomainAdapter[T any]() *DomainAdapter[T] {
	return &DomainAdapter[T]{
		fields: make(map[string]func(T) any),
	}
}

// Field registers an accessor for a top-level key. Deeper path segments are
// resolved inside whatever the accessor returns.
func (a *DomainAdapter[T]) Field(key string, fn func(T) any) *DomainAdapter[T] {
	if _, exists := a.fields[key]; !exists {
		a.order = append(a.order, key)
	}
	a.fields[key] = fn
	return a
}

// Bind creates a RecordView from a data slice. Zero-copy — holds reference.
func (a *DomainAdapter[T]) Bind(data []T) RecordView {
	return &DomainView[T]{
		data:   data,
		fields: a.fields,
		keys:   a.order,
	}
}

// DomainView reads typed struct fields via registered accessor functions.
type DomainView[T any] struct {
	data   []T
	fields map[string]func(T) any
	keys   []string
}

func (v *DomainView[T]) Len() int { return len(v.data) }

func (v *DomainView[T]) Value(i int, path string) (any, bool) {
	if i < 0 || i >= len(v.data) {
		return nil, false
	}
	key, rest, nested := strings.Cut(path, ".")
	fn, ok := v.fields[key]
	if !ok {
		return nil, false
	}
	val := fn(v.data[i])
	if !nested {
		return val, val != nil
	}
	m, ok := asMap(val)
	if !ok {
		return nil, false
	}
	return Resolve(m, rest)
}

// Record materializes the registered fields of one struct.
func (v *DomainView[T]) Record(i int) Record {
	if i < 0 || i >= len(v.data) {
		return nil
	}
	rec := make(Record, len(v.keys))
	for _, k := range v.keys {
		rec[k] = v.fields[k](v.data[i])
	}
	return rec
}

// Keys returns the registered top-level keys in registration order.
func (v *DomainView[T]) Keys() []string { return v.keys }
