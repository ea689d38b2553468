package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

// ============================================================================
// AGGREGATION TESTS
// ============================================================================

func sales() RecordView {
	return NewSliceView([]Record{
		{"region": "eu", "amt": 10, "channel": "web", "timestamp": "2026-01-05T10:00:00Z"},
		{"region": "eu", "amt": 20, "channel": "app", "timestamp": "2026-01-20T10:00:00Z"},
		{"region": "us", "amt": 5, "channel": "web", "timestamp": "2026-02-02T10:00:00Z"},
		{"region": "us", "amt": "n/a", "channel": "web", "timestamp": "2026-02-03T10:00:00Z"},
		{"region": "apac", "amt": 40, "timestamp": "2026-03-01T10:00:00Z"},
	})
}

func TestAggregateSumByRegion(t *testing.T) {
	view := NewSliceView([]Record{
		{"region": "eu", "amt": 10},
		{"region": "eu", "amt": 20},
		{"region": "us", "amt": 5},
	})

	result, err := Aggregate(view, AggregationConfig{
		GroupBy: []string{"region"},
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
	})
	require.NoError(t, err)

	assert.Equal(t, []Row{
		{"group_0": "eu", "amt_sum": 30.0},
		{"group_0": "us", "amt_sum": 5.0},
	}, result.Groups)
	assert.Equal(t, map[string]float64{"amt_sum": 35}, result.Totals)
	assert.Equal(t, 3, result.Summary.TotalRecords)
	assert.Equal(t, 3, result.Summary.FilteredRecords)
	assert.Equal(t, 2, result.Summary.GroupCount)
}

func TestAggregateOperators(t *testing.T) {
	result, err := Aggregate(sales(), AggregationConfig{
		GroupBy: []string{"region"},
		Metrics: []AggregationMetric{
			{Field: "amt", Aggregation: AggCount},
			{Field: "amt", Aggregation: AggDistinct},
			{Field: "amt", Aggregation: AggAverage},
			{Field: "amt", Aggregation: AggMin},
			{Field: "amt", Aggregation: AggMax},
			{Field: "amt", Aggregation: AggMedian},
			{Field: "amt", Aggregation: AggPercentile, Alias: "p50", Percentile: 50},
			{Field: "amt", Aggregation: AggPercentile, Alias: "p95"},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 3)

	eu := result.Groups[0]
	assert.Equal(t, "eu", eu["group_0"])
	assert.Equal(t, 2.0, eu["amt_count"])
	assert.Equal(t, 2.0, eu["amt_distinct"])
	assert.Equal(t, 15.0, eu["amt_average"])
	assert.Equal(t, 10.0, eu["amt_min"])
	assert.Equal(t, 20.0, eu["amt_max"])
	assert.Equal(t, 15.0, eu["amt_median"])
	assert.Equal(t, 15.0, eu["p50"])
	assert.InDelta(t, 19.5, eu["p95"], 1e-9)

	// "n/a" is excluded from numeric operators but still counted.
	us := result.Groups[1]
	assert.Equal(t, 2.0, us["amt_count"])
	assert.Equal(t, 1.0, us["amt_distinct"])
	assert.Equal(t, 5.0, us["amt_average"])

	// count/distinct sum, average-like mean, min/max extremes.
	assert.Equal(t, 5.0, result.Totals["amt_count"])
	assert.Equal(t, 4.0, result.Totals["amt_distinct"])
	assert.InDelta(t, (15.0+5+40)/3, result.Totals["amt_average"], 1e-9)
	assert.Equal(t, 5.0, result.Totals["amt_min"])
	assert.Equal(t, 40.0, result.Totals["amt_max"])
}

func TestAggregateNoValidValuesYieldsZero(t *testing.T) {
	view := NewSliceView([]Record{{"k": "a", "v": "x"}, {"k": "a"}})
	result, err := Aggregate(view, AggregationConfig{
		GroupBy: []string{"k"},
		Metrics: []AggregationMetric{
			{Field: "v", Aggregation: AggSum},
			{Field: "v", Aggregation: AggMin},
			{Field: "v", Aggregation: AggPercentile},
			{Field: "v", Aggregation: AggCount},
			{Field: "v", Aggregation: AggDistinct},
		},
	})
	require.NoError(t, err)
	row := result.Groups[0]
	assert.Equal(t, 0.0, row["v_sum"])
	assert.Equal(t, 0.0, row["v_min"])
	assert.Equal(t, 0.0, row["v_percentile"])
	assert.Equal(t, 2.0, row["v_count"])
	assert.Equal(t, 0.0, row["v_distinct"])
}

func TestAggregateEmptyInput(t *testing.T) {
	result, err := Aggregate(NewSliceView(nil), AggregationConfig{
		GroupBy: []string{"region"},
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}, {Field: "amt", Aggregation: AggMax}},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Groups)
	assert.Equal(t, map[string]float64{"amt_sum": 0, "amt_max": 0}, result.Totals)
	assert.Equal(t, 0, result.Summary.GroupCount)
}

func TestAggregateMissingKeysShareGroup(t *testing.T) {
	view := NewSliceView([]Record{
		{"a": "x", "n": 1},
		{"n": 2},
		{"a": nil, "n": 3},
		{"a": "x", "n": 4},
	})
	result, err := Aggregate(view, AggregationConfig{
		GroupBy: []string{"a"},
		Metrics: []AggregationMetric{{Field: "n", Aggregation: AggSum, Alias: "total"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, Row{"group_0": "x", "total": 5.0}, result.Groups[0])
	assert.Equal(t, Row{"group_0": nil, "total": 5.0}, result.Groups[1])
}

func TestAggregateGroupValuesKeepSeparators(t *testing.T) {
	view := NewSliceView([]Record{
		{"a": "x\x1fy", "b": "z", "n": 1},
		{"a": "\x00__missing__", "b": "z", "n": 2},
		{"b": "z", "n": 3},
		{"a": "x", "b": "y\x1fz", "n": 4},
	})
	result, err := Aggregate(view, AggregationConfig{
		GroupBy: []string{"a", "b"},
		Metrics: []AggregationMetric{{Field: "n", Aggregation: AggSum, Alias: "total"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 4)
	assert.Equal(t, Row{"group_0": "x\x1fy", "group_1": "z", "total": 1.0}, result.Groups[0])
	assert.Equal(t, Row{"group_0": "\x00__missing__", "group_1": "z", "total": 2.0}, result.Groups[1])
	assert.Equal(t, Row{"group_0": nil, "group_1": "z", "total": 3.0}, result.Groups[2])
	assert.Equal(t, Row{"group_0": "x", "group_1": "y\x1fz", "total": 4.0}, result.Groups[3])
}

func TestAggregateCompositeKey(t *testing.T) {
	result, err := Aggregate(sales(), AggregationConfig{
		GroupBy: []string{"region", "channel"},
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggCount}},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 4)
	assert.Equal(t, Row{"group_0": "eu", "group_1": "web", "amt_count": 1.0}, result.Groups[0])
	assert.Equal(t, Row{"group_0": "apac", "group_1": nil, "amt_count": 1.0}, result.Groups[3])
}

func TestAggregateNoGroupBy(t *testing.T) {
	result, err := Aggregate(sales(), AggregationConfig{
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, Row{"amt_sum": 75.0}, result.Groups[0])
}

func TestAggregateFiltersAndDateRange(t *testing.T) {
	view := NewSliceView([]Record{
		{"region": "eu", "amt": 10, "timestamp": "2026-01-05T00:00:00Z"},
		{"region": "eu", "amt": 20, "createdAt": "2026-03-05T00:00:00Z"},
		{"region": "eu", "amt": 30},
		{"region": "eu", "amt": 40, "date": "garbage"},
		{"region": "us", "amt": 50, "timestamp": "2026-01-06T00:00:00Z"},
	})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC).UnixMilli()

	result, err := Aggregate(view, AggregationConfig{
		GroupBy:   []string{"region"},
		Metrics:   []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
		Filters:   []Filter{{Field: "region", Operator: OpEquals, Value: "EU"}},
		DateRange: &DateRange{Start: start, End: end},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Summary.TotalRecords)
	assert.Equal(t, 2, result.Summary.FilteredRecords, "in-range record plus the one without a timestamp")
	assert.Equal(t, 40.0, result.Groups[0]["amt_sum"])
}

func TestAggregateTimePeriodAddsTrailingKey(t *testing.T) {
	result, err := Aggregate(sales(), AggregationConfig{
		GroupBy:    []string{"region"},
		TimePeriod: PeriodMonth,
		Metrics:    []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
	})
	require.NoError(t, err)
	require.Len(t, result.Groups, 3)
	assert.Equal(t, Row{"group_0": "eu", "group_1": "2026-01", "amt_sum": 30.0}, result.Groups[0])
	assert.Equal(t, Row{"group_0": "us", "group_1": "2026-02", "amt_sum": 5.0}, result.Groups[1])
}

func TestAggregateOrderAndLimit(t *testing.T) {
	cfg := AggregationConfig{
		GroupBy: []string{"region"},
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum, Alias: "revenue"}},
		OrderBy: &OrderBy{Field: "revenue", Direction: SortDesc},
		Limit:   2,
	}
	result, err := Aggregate(sales(), cfg)
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, "apac", result.Groups[0]["group_0"])
	assert.Equal(t, "eu", result.Groups[1]["group_0"])
	assert.Equal(t, 3, result.Summary.GroupCount)
	assert.Equal(t, 75.0, result.Totals["revenue"], "totals cover every group formed")

	cfg.OrderBy = &OrderBy{Field: "group_0"}
	cfg.Limit = 0
	result, err = Aggregate(sales(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{"apac", "eu", "us"}, column(result.Groups, "group_0"))
}

func TestSortRowsCollation(t *testing.T) {
	rows := []Row{{"name": "zebra"}, {"name": "Äpfel"}, {"name": "apple"}, {"name": "Banana"}}
	SortRows(rows, OrderBy{Field: "name"}, WithLocale(language.German))
	assert.Equal(t, []any{"Äpfel", "apple", "Banana", "zebra"}, column(rows, "name"))
}

func TestSortRowsNumericBeforeString(t *testing.T) {
	rows := []Row{{"v": 10.0}, {"v": 9.0}, {"v": 100.0}}
	SortRows(rows, OrderBy{Field: "v", Direction: SortAsc})
	assert.Equal(t, []any{9.0, 10.0, 100.0}, column(rows, "v"))
}

func TestAggregateIdempotent(t *testing.T) {
	cfg := AggregationConfig{
		GroupBy: []string{"region", "channel"},
		Metrics: []AggregationMetric{
			{Field: "amt", Aggregation: AggSum},
			{Field: "amt", Aggregation: AggMedian},
		},
		OrderBy: &OrderBy{Field: "amt_sum", Direction: SortDesc},
	}
	first, err := Aggregate(sales(), cfg)
	require.NoError(t, err)
	second, err := Aggregate(sales(), cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.Totals, second.Totals)
}

func TestAggregateCountTotalEqualsFilteredRecords(t *testing.T) {
	cfg := AggregationConfig{
		GroupBy: []string{"channel"},
		Metrics: []AggregationMetric{{Field: "region", Aggregation: AggCount, Alias: "n"}},
		Filters: []Filter{{Field: "region", Operator: OpNotEquals, Value: "apac"}},
	}
	result, err := Aggregate(sales(), cfg)
	require.NoError(t, err)
	assert.Equal(t, float64(result.Summary.FilteredRecords), result.Totals["n"])
}

func TestAggregateProcessingTimeUsesClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Millisecond)
	}
	result, err := Aggregate(sales(), AggregationConfig{
		GroupBy: []string{"region"},
		Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
	}, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, result.Summary.ProcessingTime)
}

// ============================================================================
// CONFIGURATION REJECTION TESTS
// ============================================================================

func TestAggregateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   AggregationConfig
		field string
		rule  string
	}{
		{
			name:  "unknown aggregation",
			cfg:   AggregationConfig{Metrics: []AggregationMetric{{Field: "amt", Aggregation: "mode"}}},
			field: "metrics[0].aggregation",
			rule:  "oneof",
		},
		{
			name:  "metric without field",
			cfg:   AggregationConfig{Metrics: []AggregationMetric{{Aggregation: AggSum}}},
			field: "metrics[0].field",
			rule:  "required",
		},
		{
			name: "orderBy not an output column",
			cfg: AggregationConfig{
				GroupBy: []string{"region"},
				Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
				OrderBy: &OrderBy{Field: "amt"},
			},
			field: "orderBy.field",
			rule:  "orderby_column",
		},
		{
			name: "bad sort direction",
			cfg: AggregationConfig{
				Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
				OrderBy: &OrderBy{Field: "amt_sum", Direction: "sideways"},
			},
			field: "orderBy.direction",
			rule:  "oneof",
		},
		{
			name: "duplicate output column",
			cfg: AggregationConfig{
				Metrics: []AggregationMetric{
					{Field: "amt", Aggregation: AggSum},
					{Field: "other", Aggregation: AggMax, Alias: "amt_sum"},
				},
			},
			field: "metrics[1]",
			rule:  "unique_column",
		},
		{
			name: "inverted date range",
			cfg: AggregationConfig{
				Metrics:   []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
				DateRange: &DateRange{Start: 200, End: 100},
			},
			field: "dateRange.end",
			rule:  "gtefield",
		},
		{
			name: "unknown time period",
			cfg: AggregationConfig{
				Metrics:    []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
				TimePeriod: "fortnight",
			},
			field: "timePeriod",
			rule:  "oneof",
		},
		{
			name: "unknown filter operator",
			cfg: AggregationConfig{
				Filters: []Filter{{Field: "amt", Operator: "near", Value: 1}},
			},
			field: "filters[0].operator",
			rule:  "oneof",
		},
		{
			name:  "negative limit",
			cfg:   AggregationConfig{Limit: -1},
			field: "limit",
			rule:  "gte",
		},
		{
			name:  "percentile rank out of range",
			cfg:   AggregationConfig{Metrics: []AggregationMetric{{Field: "amt", Aggregation: AggPercentile, Percentile: 120}}},
			field: "metrics[0].percentile",
			rule:  "lte",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Aggregate(sales(), tt.cfg)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Errors, ConfigError{
				Field:   tt.field,
				Rule:    tt.rule,
				Message: findMessage(verr.Errors, tt.field, tt.rule),
			})
		})
	}
}

func TestAggregateAcceptsGroupColumnOrder(t *testing.T) {
	_, err := Aggregate(sales(), AggregationConfig{
		GroupBy:    []string{"region"},
		TimePeriod: PeriodYear,
		Metrics:    []AggregationMetric{{Field: "amt", Aggregation: AggSum}},
		OrderBy:    &OrderBy{Field: "group_1"},
	})
	assert.NoError(t, err)
}

func findMessage(errs []ConfigError, field, rule string) string {
	for _, ce := range errs {
		if ce.Field == field && ce.Rule == rule {
			return ce.Message
		}
	}
	return "<missing>"
}

func column(rows []Row, key string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[key]
	}
	return out
}
