package engine

import (
	"fmt"
	"sort"
	"time"
)

// ============================================================================
// TIME SERIES — Calendar bucketing and per-bucket sums
// ============================================================================

// Period is a calendar bucket granularity.
type Period string

const (
	PeriodHour    Period = "hour"
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// Valid reports whether p is a known granularity.
func (p Period) Valid() bool {
	switch p {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	}
	return false
}

// WeekNumbering selects the week label scheme.
type WeekNumbering int

const (
	// WeekOfMonth labels a week YYYY-Www with ww = ceil(day-of-month of the
	// Sunday that starts the week / 7). Labels repeat across months.
	WeekOfMonth WeekNumbering = iota
	// ISOWeeks labels a week with its ISO-8601 year and week number.
	ISOWeeks
)

// BucketLabel formats t as the label of its period bucket.
func BucketLabel(t time.Time, period Period, weeks WeekNumbering) string {
	switch period {
	case PeriodHour:
		return t.Format("2006-01-02 15") + ":00"
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		if weeks == ISOWeeks {
			year, week := t.ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		}
		start := t.AddDate(0, 0, -int(t.Weekday()))
		return fmt.Sprintf("%04d-W%02d", start.Year(), (start.Day()+6)/7)
	case PeriodMonth:
		return t.Format("2006-01")
	case PeriodQuarter:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case PeriodYear:
		return fmt.Sprintf("%04d", t.Year())
	}
	return ""
}

// AggregateTimeSeries sums valueField per period bucket of dateField.
// Non-numeric values count as 0; records whose date cannot be read are
// skipped; empty buckets are omitted. Points are sorted by label.
func AggregateTimeSeries(view RecordView, dateField, valueField string, period Period, dateRange *DateRange, opts ...Option) ([]TimeSeriesPoint, error) {
	var errs []ConfigError
	errs = requireField(errs, "dateField", dateField)
	errs = requireField(errs, "valueField", valueField)
	if !period.Valid() {
		errs = append(errs, ConfigError{
			Field:   "period",
			Rule:    "oneof",
			Message: fmt.Sprintf("unknown period %q", period),
		})
	}
	if dateRange != nil && dateRange.Start > dateRange.End {
		errs = append(errs, ConfigError{Field: "dateRange", Rule: "gtefield", Message: "end is before start"})
	}
	if err := finish(errs); err != nil {
		return nil, err
	}

	cfg := applyOptions(opts)
	sums := make(map[string]float64)
	for i := 0; i < view.Len(); i++ {
		v, ok := view.Value(i, dateField)
		if !ok {
			continue
		}
		t, ok := ToTime(v, cfg.location)
		if !ok {
			continue
		}
		if dateRange != nil && !dateRange.Contains(t) {
			continue
		}
		label := BucketLabel(t, period, cfg.weeks)
		raw, _ := view.Value(i, valueField)
		amount, _ := ToNumber(raw)
		sums[label] += amount
	}

	points := make([]TimeSeriesPoint, 0, len(sums))
	for label, total := range sums {
		points = append(points, TimeSeriesPoint{Timestamp: label, Value: total})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	cfg.logger.Debug().
		Int("records", view.Len()).
		Int("buckets", len(points)).
		Str("period", string(period)).
		Msg("time series aggregated")
	return points, nil
}
