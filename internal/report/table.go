package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spektr-org/insight/engine"
)

// ============================================================================
// TABLE BUILDER — Flattens a Result into columns + string rows
// ============================================================================

// Table is a rendered report: header columns, string cells and an optional
// summary row.
type Table struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number"
	Align string `json:"align"` // "left", "right"
}

// Summary is a totals row keyed by column key.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// Headers returns the column labels.
func (t Table) Headers() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Label
	}
	return out
}

// SummaryRow lays the summary out under the columns; the first cell holds
// the label unless a value already occupies it.
func (t Table) SummaryRow() []string {
	if t.Summary == nil {
		return nil
	}
	row := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = t.Summary.Values[c.Key]
	}
	if len(row) > 0 && row[0] == "" {
		row[0] = t.Summary.Label
	}
	return row
}

func textColumn(key, label string) Column {
	return Column{Key: key, Label: label, Type: "text", Align: "left"}
}

func numberColumn(key, label string) Column {
	return Column{Key: key, Label: label, Type: "number", Align: "right"}
}

// ToTable flattens r.Data into a Table titled by the report's Title, or its
// name. Unknown data types produce a table with a single "Value" column.
func ToTable(r Result) Table {
	title := r.Name
	if r.Report.Title != "" {
		title = r.Report.Title
	}
	switch data := r.Data.(type) {
	case *engine.AggregationResult:
		return aggregateTable(title, r, data)
	case []engine.TimeSeriesPoint:
		return timeSeriesTable(title, data)
	case []engine.CohortResult:
		return cohortTable(title, data)
	case []engine.FunnelStepResult:
		return funnelTable(title, data)
	case engine.StatisticsSummary:
		return statisticsTable(title, data)
	case []engine.AnomalyResult:
		return anomalyTable(title, data)
	}
	return Table{
		Title:   title,
		Columns: []Column{textColumn("value", "Value")},
		Rows:    [][]string{{fmt.Sprint(r.Data)}},
	}
}

// ============================================================================
// AGGREGATE TABLE — One row per group
// ============================================================================

func aggregateTable(title string, r Result, data *engine.AggregationResult) Table {
	var columns []Column
	var metrics []string

	if cfg := r.Report.Aggregate; cfg != nil {
		for i, field := range cfg.GroupBy {
			columns = append(columns, textColumn(fmt.Sprintf("group_%d", i), Label(field)))
		}
		if cfg.TimePeriod != "" {
			columns = append(columns, textColumn(fmt.Sprintf("group_%d", len(cfg.GroupBy)), Label(string(cfg.TimePeriod))))
		}
		for _, m := range cfg.Metrics {
			metrics = append(metrics, m.Column())
			columns = append(columns, numberColumn(m.Column(), Label(m.Column())))
		}
	} else if len(data.Groups) > 0 {
		// No job spec: fall back to the first row's keys, group columns first.
		keys := make([]string, 0, len(data.Groups[0]))
		for k := range data.Groups[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.HasPrefix(k, "group_") {
				columns = append(columns, textColumn(k, Label(k)))
			}
		}
		for _, k := range keys {
			if !strings.HasPrefix(k, "group_") {
				metrics = append(metrics, k)
				columns = append(columns, numberColumn(k, Label(k)))
			}
		}
	}

	rows := make([][]string, 0, len(data.Groups))
	for _, g := range data.Groups {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = formatCell(g[c.Key])
		}
		rows = append(rows, row)
	}

	values := make(map[string]string, len(metrics))
	for _, m := range metrics {
		values[m] = FormatNumber(data.Totals[m])
	}

	return Table{
		Title:   title,
		Columns: columns,
		Rows:    rows,
		Summary: &Summary{
			Label:  fmt.Sprintf("Total (%d records)", data.Summary.FilteredRecords),
			Values: values,
		},
	}
}

// ============================================================================
// SERIES TABLES
// ============================================================================

func timeSeriesTable(title string, points []engine.TimeSeriesPoint) Table {
	rows := make([][]string, 0, len(points))
	var total float64
	for _, p := range points {
		rows = append(rows, []string{p.Timestamp, FormatNumber(p.Value)})
		total += p.Value
	}
	return Table{
		Title:   title,
		Columns: []Column{textColumn("timestamp", "Period"), numberColumn("value", "Value")},
		Rows:    rows,
		Summary: &Summary{Label: "Total", Values: map[string]string{"value": FormatNumber(total)}},
	}
}

func cohortTable(title string, cohorts []engine.CohortResult) Table {
	columns := []Column{textColumn("cohort", "Cohort"), numberColumn("size", "Size")}
	if len(cohorts) > 0 {
		for _, p := range cohorts[0].Retention {
			columns = append(columns, numberColumn(fmt.Sprintf("day_%d", p.Period), fmt.Sprintf("Day %d", p.Period)))
		}
	}

	rows := make([][]string, 0, len(cohorts))
	for _, c := range cohorts {
		row := []string{c.Cohort, strconv.Itoa(c.Size)}
		for _, p := range c.Retention {
			row = append(row, fmt.Sprintf("%d (%s%%)", p.Retained, FormatNumber(p.Percentage)))
		}
		rows = append(rows, row)
	}
	return Table{Title: title, Columns: columns, Rows: rows}
}

func funnelTable(title string, steps []engine.FunnelStepResult) Table {
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, []string{
			s.Step,
			strconv.Itoa(s.Users),
			FormatNumber(s.ConversionRate),
			FormatNumber(s.DropOffRate),
		})
	}
	return Table{
		Title: title,
		Columns: []Column{
			textColumn("step", "Step"),
			numberColumn("users", "Users"),
			numberColumn("conversionRate", "Conversion %"),
			numberColumn("dropOffRate", "Drop-off %"),
		},
		Rows: rows,
	}
}

func statisticsTable(title string, s engine.StatisticsSummary) Table {
	modes := make([]string, len(s.Mode))
	for i, m := range s.Mode {
		modes[i] = FormatNumber(m)
	}
	rows := [][]string{
		{"Count", strconv.Itoa(s.Count)},
		{"Sum", FormatNumber(s.Sum)},
		{"Mean", FormatNumber(s.Mean)},
		{"Median", FormatNumber(s.Median)},
		{"Mode", strings.Join(modes, ", ")},
		{"Min", FormatNumber(s.Min)},
		{"Max", FormatNumber(s.Max)},
		{"Variance", FormatNumber(s.Variance)},
		{"Std Dev", FormatNumber(s.StandardDeviation)},
		{"P25", FormatNumber(s.Percentiles.P25)},
		{"P50", FormatNumber(s.Percentiles.P50)},
		{"P75", FormatNumber(s.Percentiles.P75)},
		{"P95", FormatNumber(s.Percentiles.P95)},
		{"P99", FormatNumber(s.Percentiles.P99)},
	}
	return Table{
		Title:   title,
		Columns: []Column{textColumn("statistic", "Statistic"), numberColumn("value", "Value")},
		Rows:    rows,
	}
}

func anomalyTable(title string, anomalies []engine.AnomalyResult) Table {
	rows := make([][]string, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, []string{strconv.Itoa(a.Index), FormatNumber(a.Value), FormatNumber(a.Score)})
	}
	return Table{
		Title: title,
		Columns: []Column{
			numberColumn("index", "Index"),
			numberColumn("value", "Value"),
			numberColumn("score", "Score"),
		},
		Rows: rows,
	}
}

// ============================================================================
// FORMATTING
// ============================================================================

// Label turns a field or column key into a header: "amt_sum" → "Amt Sum",
// "geo.region" → "Geo Region".
func Label(key string) string {
	key = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(key)
	return cases.Title(language.English).String(strings.Join(strings.Fields(key), " "))
}

// FormatNumber prints whole numbers without decimals and everything else
// with two.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatCell(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := engine.ToNumber(v); ok {
		return FormatNumber(f)
	}
	return engine.Stringify(v)
}
