package report

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/helpers"
	"github.com/spektr-org/insight/internal/config"
)

// ============================================================================
// FIXTURES
// ============================================================================

var events = []engine.Record{
	{"user": "u1", "region": "EU", "amt": 10.0, "event": "visit", "ts": "2026-01-05T10:00:00Z"},
	{"user": "u1", "region": "EU", "amt": 20.0, "event": "buy", "ts": "2026-01-06T10:00:00Z"},
	{"user": "u2", "region": "US", "amt": 5.0, "event": "visit", "ts": "2026-01-06T12:00:00Z"},
	{"user": "u3", "region": "US", "amt": 100.0, "event": "visit", "ts": "2026-01-07T00:00:00Z"},
}

func eventIs(name string) []engine.Filter {
	return []engine.Filter{{Field: "event", Operator: engine.OpEquals, Value: name}}
}

func job() *config.Config {
	cfg := config.Default()
	cfg.Reports = []config.Report{
		{
			Name: "revenue",
			Kind: config.KindAggregate,
			Aggregate: &engine.AggregationConfig{
				GroupBy: []string{"region"},
				Metrics: []engine.AggregationMetric{{Field: "amt", Aggregation: engine.AggSum}},
				OrderBy: &engine.OrderBy{Field: "amt_sum", Direction: engine.SortDesc},
			},
		},
		{
			Name:       "daily",
			Kind:       config.KindTimeSeries,
			TimeSeries: &config.TimeSeriesReport{DateField: "ts", ValueField: "amt", Period: engine.PeriodDay},
		},
		{
			Name: "checkout",
			Kind: config.KindFunnel,
			Funnel: &config.FunnelReport{
				UserIDField: "user",
				Steps: []config.FunnelStep{
					{Name: "visit", Filters: eventIs("visit")},
					{Name: "buy", Filters: eventIs("buy")},
				},
			},
		},
		{
			Name: "retention",
			Kind: config.KindCohort,
			Cohort: &config.CohortReport{
				CohortDateField: "ts", ReturnDateField: "ts", UserIDField: "user", Periods: []int{1, 7},
			},
		},
		{
			Name:       "amounts",
			Kind:       config.KindStatistics,
			Statistics: &config.FieldReport{Field: "amt"},
		},
		{
			Name:       "eu_amounts",
			Kind:       config.KindStatistics,
			Filters:    []engine.Filter{{Field: "region", Operator: engine.OpIn, Value: []any{"EU"}}},
			Statistics: &config.FieldReport{Field: "amt"},
		},
		{
			Name:      "outliers",
			Kind:      config.KindAnomalies,
			Anomalies: &config.AnomalyReport{Field: "amt", Threshold: 1},
		},
	}
	return cfg
}

// ============================================================================
// RUNNER TESTS
// ============================================================================

func TestRunComputesEveryReport(t *testing.T) {
	results, err := Run(context.Background(), job(), events, Options{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, 7)

	runIDs := make(map[string]bool)
	for i, r := range results {
		assert.Equal(t, job().Reports[i].Name, r.Name, "results keep job order")
		assert.NotEmpty(t, r.RunID)
		runIDs[r.RunID] = true
	}
	assert.Len(t, runIDs, 7)

	agg, ok := results[0].Data.(*engine.AggregationResult)
	require.True(t, ok)
	require.Len(t, agg.Groups, 2)
	assert.Equal(t, "US", agg.Groups[0]["group_0"])
	assert.Equal(t, 135.0, agg.Totals["amt_sum"])

	points, ok := results[1].Data.([]engine.TimeSeriesPoint)
	require.True(t, ok)
	assert.Equal(t, []engine.TimeSeriesPoint{
		{Timestamp: "2026-01-05", Value: 10},
		{Timestamp: "2026-01-06", Value: 25},
		{Timestamp: "2026-01-07", Value: 100},
	}, points)

	funnel, ok := results[2].Data.([]engine.FunnelStepResult)
	require.True(t, ok)
	require.Len(t, funnel, 2)
	assert.Equal(t, 3, funnel[0].Users)
	assert.Equal(t, 1, funnel[1].Users)

	cohorts, ok := results[3].Data.([]engine.CohortResult)
	require.True(t, ok)
	require.Len(t, cohorts, 1)
	assert.Equal(t, 3, cohorts[0].Size)

	stats, ok := results[4].Data.(engine.StatisticsSummary)
	require.True(t, ok)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 135.0, stats.Sum)

	euStats := results[5].Data.(engine.StatisticsSummary)
	assert.Equal(t, 2, euStats.Count)

	anomalies, ok := results[6].Data.([]engine.AnomalyResult)
	require.True(t, ok)
	require.Len(t, anomalies, 1)
	assert.Equal(t, 100.0, anomalies[0].Value)
	assert.Equal(t, 3, anomalies[0].Index)
}

func TestRunStopsOnInvalidReport(t *testing.T) {
	cfg := job()
	cfg.Reports[0].Aggregate.Metrics[0].Aggregation = "mean"

	_, err := Run(context.Background(), cfg, events, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvalidConfig))
	assert.Contains(t, err.Error(), `report "revenue"`)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, job(), events, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeRejectsBadReports(t *testing.T) {
	view := engine.NewSliceView(events)

	tests := []struct {
		name   string
		report config.Report
	}{
		{"unknown kind", config.Report{Name: "x", Kind: "pivot"}},
		{"missing section", config.Report{Name: "x", Kind: config.KindTimeSeries}},
		{"statistics without field", config.Report{Name: "x", Kind: config.KindStatistics, Statistics: &config.FieldReport{}}},
		{"anomalies bad method", config.Report{Name: "x", Kind: config.KindAnomalies, Anomalies: &config.AnomalyReport{Field: "amt", Method: "mad"}}},
		{"bad prefilter", config.Report{
			Name: "x", Kind: config.KindStatistics,
			Filters:    []engine.Filter{{Field: "amt", Operator: "roughly"}},
			Statistics: &config.FieldReport{Field: "amt"},
		}},
		{"funnel step without filters", config.Report{
			Name: "x", Kind: config.KindFunnel,
			Funnel: &config.FunnelReport{UserIDField: "user", Steps: []config.FunnelStep{{Name: "visit"}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.report, view)
			assert.Error(t, err)
		})
	}
}

func TestFunnelSteps(t *testing.T) {
	steps, err := FunnelSteps([]config.FunnelStep{{Name: "visit", Filters: eventIs("visit")}})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Condition(events[0]))
	assert.False(t, steps[0].Condition(events[1]))

	_, err = FunnelSteps([]config.FunnelStep{{Filters: eventIs("visit")}})
	assert.Error(t, err)
}

// ============================================================================
// TABLE TESTS
// ============================================================================

func TestToTable(t *testing.T) {
	results, err := Run(context.Background(), job(), events, Options{})
	require.NoError(t, err)

	agg := ToTable(results[0])
	assert.Equal(t, "revenue", agg.Title)
	assert.Equal(t, []string{"Region", "Amt Sum"}, agg.Headers())
	assert.Equal(t, [][]string{{"US", "105"}, {"EU", "30"}}, agg.Rows)
	assert.Equal(t, []string{"Total (4 records)", "135"}, agg.SummaryRow())

	series := ToTable(results[1])
	assert.Equal(t, []string{"Period", "Value"}, series.Headers())
	assert.Len(t, series.Rows, 3)
	assert.Equal(t, []string{"Total", "135"}, series.SummaryRow())

	cohort := ToTable(results[3])
	assert.Equal(t, []string{"Cohort", "Size", "Day 1", "Day 7"}, cohort.Headers())

	funnel := ToTable(results[2])
	assert.Equal(t, []string{"visit", "3", "100", "0"}, funnel.Rows[0])

	stats := ToTable(results[4])
	assert.Equal(t, []string{"Count", "4"}, stats.Rows[0])
	assert.Nil(t, stats.SummaryRow())

	outliers := ToTable(results[6])
	assert.Equal(t, []string{"Index", "Value", "Score"}, outliers.Headers())
	assert.Equal(t, "3", outliers.Rows[0][0])
}

func TestStarterJobRuns(t *testing.T) {
	records, sch, err := helpers.ParseCSVAuto([]byte(`Category,Field,Amount
Income,Salary,8500.00
Expense,Rent,2200.00
Expense,Groceries,450.50
Income,Salary,8500.00
`))
	require.NoError(t, err)

	job := config.Starter(sch, config.SourceConfig{})
	results, err := Run(context.Background(), job, records, Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	lead := ToTable(results[0])
	assert.Equal(t, "Amount by Category", lead.Title)
	assert.Equal(t, [][]string{{"Income", "17000"}, {"Expense", "2650.50"}}, lead.Rows)

	breakdown := ToTable(results[2])
	assert.Equal(t, "Amount by Category and Field", breakdown.Title)
	assert.Equal(t, []string{"Category", "Field", "Amount Sum"}, breakdown.Headers())
	assert.Equal(t, []string{"Expense", "Rent", "2200"}, breakdown.Rows[0])
}

func TestToTableWithoutJobSpec(t *testing.T) {
	table := ToTable(Result{
		Name: "adhoc",
		Data: &engine.AggregationResult{
			Groups: []engine.Row{{"group_0": "EU", "amt_sum": 2.5}},
			Totals: map[string]float64{"amt_sum": 2.5},
		},
	})
	assert.Equal(t, []string{"Group 0", "Amt Sum"}, table.Headers())
	assert.Equal(t, [][]string{{"EU", "2.50"}}, table.Rows)

	fallback := ToTable(Result{Name: "raw", Data: 42})
	assert.Equal(t, [][]string{{"42"}}, fallback.Rows)
}

func TestLabelAndFormatNumber(t *testing.T) {
	assert.Equal(t, "Amt Sum", Label("amt_sum"))
	assert.Equal(t, "Geo Region", Label("geo.region"))
	assert.Equal(t, "Day", Label("day"))

	assert.Equal(t, "3", FormatNumber(3))
	assert.Equal(t, "2.50", FormatNumber(2.5))
	assert.Equal(t, "-1", FormatNumber(-1))
}

// ============================================================================
// RENDERER TESTS
// ============================================================================

func TestWriteCSV(t *testing.T) {
	table := Table{
		Title:   "revenue",
		Columns: []Column{textColumn("group_0", "Region"), numberColumn("amt_sum", "Amt Sum")},
		Rows:    [][]string{{"US", "105"}, {"EU", "30"}},
		Summary: &Summary{Label: "Total", Values: map[string]string{"amt_sum": "135"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Table{table}))
	assert.Equal(t, "Region,Amt Sum\nUS,105\nEU,30\nTotal,135\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, []Table{table, table}))
	assert.Contains(t, buf.String(), "revenue\nRegion,Amt Sum\n")
}

func TestWriteText(t *testing.T) {
	table := Table{
		Title:   "daily",
		Columns: []Column{textColumn("timestamp", "Period"), numberColumn("value", "Value")},
		Rows:    [][]string{{"2026-01-05", "10"}},
	}
	empty := Table{Title: "nothing", Columns: table.Columns}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, []Table{table, empty}))
	out := buf.String()
	assert.Contains(t, out, "== daily ==")
	assert.Contains(t, out, "Period      Value")
	assert.Contains(t, out, "2026-01-05  10")
	assert.Contains(t, out, "== nothing ==\nNo data.")
}
