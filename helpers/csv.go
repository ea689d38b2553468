package helpers

import (
	"fmt"
	"strings"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/schema"
)

// ============================================================================
// CSV HELPER — Parses CSV data into []engine.Record
// ============================================================================
// Consumer reads the CSV from wherever it lives (file, S3, Sheets).
// This helper converts the raw bytes into Records using the schema:
// measures become float64, boolean dimensions become bool, every other
// cell stays a string. Empty cells are left out of the record.
// ============================================================================

// Options controls how tabular rows become records.
type Options struct {
	// KeepHeaders uses the trimmed header text as the record key instead
	// of its snake_case form.
	KeepHeaders bool
}

func pickOptions(opts []Options) Options {
	if len(opts) > 0 {
		return opts[0]
	}
	return Options{}
}

// ParseCSV parses CSV bytes into Records using sch for typing.
// Columns the schema does not know (including skipped ones) stay strings.
func ParseCSV(data []byte, sch schema.Config, opts ...Options) ([]engine.Record, error) {
	headers, rows, err := schema.ReadCSV(data)
	if err != nil {
		return nil, err
	}
	return FromRows(headers, rows, sch, pickOptions(opts)), nil
}

// ParseCSVAuto parses CSV without a pre-existing schema. The schema is
// discovered from the same rows and returned alongside the records.
func ParseCSVAuto(data []byte, opts ...Options) ([]engine.Record, *schema.Config, error) {
	headers, rows, err := schema.ReadCSV(data)
	if err != nil {
		return nil, nil, err
	}
	sch, err := schema.Discover(headers, rows, schema.DiscoverOptions{Source: "CSV"})
	if err != nil {
		return nil, nil, fmt.Errorf("schema discovery failed: %w", err)
	}
	return FromRows(headers, rows, *sch, pickOptions(opts)), sch, nil
}

// ParseCSVView parses CSV into a RecordView (convenience wrapper).
func ParseCSVView(data []byte, sch schema.Config, opts ...Options) (engine.RecordView, error) {
	records, err := ParseCSV(data, sch, opts...)
	if err != nil {
		return nil, err
	}
	return engine.NewSliceView(records), nil
}

// ============================================================================
// ROW CONVERSION
// ============================================================================

type column struct {
	path []string
	kind string
}

// FromRows converts header + string rows into typed Records. Headers with
// dots ("geo.region") produce nested records.
func FromRows(headers []string, rows [][]string, sch schema.Config, opt Options) []engine.Record {
	columns := make([]column, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		key := schema.Key(h)
		name := key
		if opt.KeepHeaders {
			name = h
		}
		columns[i] = column{path: splitPath(name), kind: sch.TypeOf(key)}
	}

	records := make([]engine.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(engine.Record, len(columns))
		for i, cell := range row {
			if i >= len(columns) || len(columns[i].path) == 0 {
				break
			}
			cell = strings.TrimSpace(cell)
			if schema.IsNull(cell) {
				continue
			}
			setPath(rec, columns[i].path, typedCell(cell, columns[i].kind))
		}
		records = append(records, rec)
	}
	return records
}

func typedCell(cell, kind string) any {
	switch kind {
	case schema.TypeNumber:
		if f, ok := schema.ParseNumber(cell); ok {
			return f
		}
	case schema.TypeBool:
		if b, ok := schema.ParseBool(cell); ok {
			return b
		}
	}
	return cell
}

func splitPath(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// setPath stores value under a nested path, creating intermediate maps.
// When an intermediate segment already holds a scalar, the value is kept
// under the flat dotted key instead.
func setPath(rec engine.Record, path []string, value any) {
	if len(path) == 1 {
		rec[path[0]] = value
		return
	}
	cur := map[string]any(rec)
	for _, seg := range path[:len(path)-1] {
		next, exists := cur[seg]
		if !exists {
			m := make(map[string]any)
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			rec[strings.Join(path, ".")] = value
			return
		}
		cur = m
	}
	cur[path[len(path)-1]] = value
}
