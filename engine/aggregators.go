package engine

import (
	"math"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// AGGREGATORS — Grouping, Aggregation, and Sorting via RecordView
// ============================================================================
// Pipeline: validate → filter → date range → group → aggregate → totals →
// sort → limit. Grouping produces SubViews (index lists into parent view).
// ============================================================================

// totalRule says how per-group values of one column combine into a total.
type totalRule int

const (
	totalSum totalRule = iota
	totalMean
	totalMin
	totalMax
)

// aggregator computes one metric over a group. values holds the group's valid
// numbers for the metric field, records is the group size.
type aggregator struct {
	compute func(values []float64, records int, m AggregationMetric) float64
	total   totalRule
}

var aggregatorTable = map[Aggregation]aggregator{
	AggSum: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 { return floats.Sum(v) },
		total:   totalSum,
	},
	AggAverage: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 {
			if len(v) == 0 {
				return 0
			}
			return stat.Mean(v, nil)
		},
		total: totalMean,
	},
	AggCount: {
		compute: func(_ []float64, n int, _ AggregationMetric) float64 { return float64(n) },
		total:   totalSum,
	},
	AggDistinct: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 { return float64(countDistinct(v)) },
		total:   totalSum,
	},
	AggMin: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 {
			if len(v) == 0 {
				return 0
			}
			return floats.Min(v)
		},
		total: totalMin,
	},
	AggMax: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 {
			if len(v) == 0 {
				return 0
			}
			return floats.Max(v)
		},
		total: totalMax,
	},
	AggMedian: {
		compute: func(v []float64, _ int, _ AggregationMetric) float64 { return Median(v) },
		total:   totalMean,
	},
	AggPercentile: {
		compute: func(v []float64, _ int, m AggregationMetric) float64 {
			return Percentile(sortedCopy(v), m.rank())
		},
		total: totalMean,
	},
}

// Valid reports whether a is a known aggregation.
func (a Aggregation) Valid() bool {
	_, ok := aggregatorTable[a]
	return ok
}

// Aggregate groups the records of view and computes cfg.Metrics per group.
// The configuration is validated first; a rejected configuration returns an
// error wrapping ErrInvalidConfig and no result.
func Aggregate(view RecordView, cfg AggregationConfig, opts ...Option) (*AggregationResult, error) {
	if err := ValidateAggregationConfig(cfg); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	started := o.now()

	// 1. Filter
	filtered := ApplyFilters(view, cfg.Filters)
	if cfg.DateRange != nil {
		filtered = applyDateRange(filtered, *cfg.DateRange, o)
	}

	// 2. Group
	groups := groupForConfig(filtered, cfg, o)

	// 3. Aggregate
	rows := make([]Row, 0, len(groups))
	columns := make([][]float64, len(cfg.Metrics))
	for _, g := range groups {
		row := make(Row, len(g.Parts)+len(cfg.Metrics))
		for i, part := range g.Parts {
			row[groupColumn(i)] = groupValue(part)
		}
		for j, m := range cfg.Metrics {
			value := aggregateMetric(g.View, m)
			row[m.Column()] = value
			columns[j] = append(columns[j], value)
		}
		rows = append(rows, row)
	}

	// 4. Totals over every group formed
	totals := make(map[string]float64, len(cfg.Metrics))
	for j, m := range cfg.Metrics {
		totals[m.Column()] = combineTotals(columns[j], aggregatorTable[m.Aggregation].total)
	}

	// 5. Sort
	if cfg.OrderBy != nil {
		sortRows(rows, *cfg.OrderBy, o)
	}

	// 6. Limit
	if cfg.Limit > 0 && len(rows) > cfg.Limit {
		rows = rows[:cfg.Limit]
	}

	result := &AggregationResult{
		Groups: rows,
		Totals: totals,
		Summary: AggregationSummary{
			TotalRecords:    view.Len(),
			FilteredRecords: filtered.Len(),
			GroupCount:      len(groups),
			ProcessingTime:  o.now().Sub(started),
		},
	}

	o.logger.Debug().
		Int("total", result.Summary.TotalRecords).
		Int("filtered", result.Summary.FilteredRecords).
		Int("groups", result.Summary.GroupCount).
		Dur("elapsed", result.Summary.ProcessingTime).
		Msg("aggregation complete")
	return result, nil
}

// groupForConfig partitions by cfg.GroupBy, plus a trailing period bucket of
// the record's own timestamp when cfg.TimePeriod is set.
func groupForConfig(view RecordView, cfg AggregationConfig, o *config) []Group {
	if cfg.TimePeriod == "" {
		return GroupRecords(view, cfg.GroupBy)
	}
	width := len(cfg.GroupBy) + 1
	return groupBy(view, width, func(i int, parts []any) {
		for j, f := range cfg.GroupBy {
			v, ok := view.Value(i, f)
			if !ok {
				v = nil
			}
			parts[j] = v
		}
		if t, present, ok := viewTimestamp(view, i, o.location); present && ok {
			parts[width-1] = BucketLabel(t, cfg.TimePeriod, o.weeks)
		}
	})
}

// applyDateRange drops records whose timestamp falls outside r. Records with
// no timestamp field pass; records with an unreadable one do not.
func applyDateRange(view RecordView, r DateRange, o *config) RecordView {
	return filterView(view, func(i int) bool {
		t, present, ok := viewTimestamp(view, i, o.location)
		if !present {
			return true
		}
		return ok && r.Contains(t)
	})
}

// viewTimestamp is BestEffortTimestamp read through a view.
func viewTimestamp(view RecordView, i int, loc *time.Location) (t time.Time, present, ok bool) {
	for _, field := range timestampFields {
		v, found := view.Value(i, field)
		if !found {
			continue
		}
		t, ok = ToTime(v, loc)
		return t, true, ok
	}
	return t, false, false
}

func aggregateMetric(view RecordView, m AggregationMetric) float64 {
	agg := aggregatorTable[m.Aggregation]
	var values []float64
	if m.Aggregation != AggCount {
		values = ExtractNumbers(view, m.Field)
	}
	return agg.compute(values, view.Len(), m)
}

func combineTotals(values []float64, rule totalRule) float64 {
	if len(values) == 0 {
		return 0
	}
	switch rule {
	case totalMean:
		return stat.Mean(values, nil)
	case totalMin:
		return floats.Min(values)
	case totalMax:
		return floats.Max(values)
	default:
		return floats.Sum(values)
	}
}

func countDistinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if v == 0 {
			v = 0 // fold -0 into 0
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// ============================================================================
// SORTING
// ============================================================================

// SortRows orders rows by one column: numerically when both values are
// numbers, else by locale collation of their string forms. The sort is
// stable, so ties keep grouping order.
func SortRows(rows []Row, by OrderBy, opts ...Option) {
	sortRows(rows, by, applyOptions(opts))
}

func sortRows(rows []Row, by OrderBy, o *config) {
	coll := collate.New(o.locale)
	desc := by.Direction == SortDesc
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(coll, rows[i][by.Field], rows[j][by.Field])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(coll *collate.Collator, a, b any) int {
	x, okA := ToNumber(a)
	y, okB := ToNumber(b)
	if okA && okB {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return coll.CompareString(Stringify(a), Stringify(b))
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
