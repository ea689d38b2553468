package engine

import "time"

// ============================================================================
// ENGINE TYPES — Domain-Agnostic Analytics
// ============================================================================
// AggregationConfig is the contract between callers and Aggregate.
// Every type here is transient: built per call, discarded by the caller.
// ============================================================================

// Aggregation names a per-group metric operator.
type Aggregation string

const (
	AggSum        Aggregation = "sum"
	AggAverage    Aggregation = "average"
	AggCount      Aggregation = "count"
	AggDistinct   Aggregation = "distinct"
	AggMin        Aggregation = "min"
	AggMax        Aggregation = "max"
	AggMedian     Aggregation = "median"
	AggPercentile Aggregation = "percentile"
)

// DefaultPercentileRank is used by the percentile operator when a metric does
// not set one.
const DefaultPercentileRank = 95.0

// AggregationMetric is one output column computed per group.
type AggregationMetric struct {
	Field       string      `json:"field" validate:"required"`
	Aggregation Aggregation `json:"aggregation" validate:"required,oneof=sum average count distinct min max median percentile"`
	Alias       string      `json:"alias,omitempty"`
	// Percentile is the rank for the percentile operator (0 = default 95).
	Percentile float64 `json:"percentile,omitempty" validate:"gte=0,lte=100"`
}

// Column returns the output column name: alias, else field_aggregation.
func (m AggregationMetric) Column() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.Field + "_" + string(m.Aggregation)
}

func (m AggregationMetric) rank() float64 {
	if m.Percentile == 0 {
		return DefaultPercentileRank
	}
	return m.Percentile
}

// DateRange is an inclusive window in epoch milliseconds.
type DateRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end" validate:"gtefield=Start"`
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	ms := t.UnixMilli()
	return ms >= r.Start && ms <= r.End
}

// SortDirection orders result rows.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OrderBy sorts result rows by one output column.
type OrderBy struct {
	Field     string        `json:"field" validate:"required"`
	Direction SortDirection `json:"direction,omitempty" validate:"omitempty,oneof=asc desc"`
}

// AggregationConfig defines what Aggregate computes.
type AggregationConfig struct {
	GroupBy    []string            `json:"groupBy" validate:"dive,required"`
	Metrics    []AggregationMetric `json:"metrics" validate:"dive"`
	Filters    []Filter            `json:"filters,omitempty" validate:"dive"`
	DateRange  *DateRange          `json:"dateRange,omitempty"`
	TimePeriod Period              `json:"timePeriod,omitempty" validate:"omitempty,oneof=hour day week month quarter year"`
	Limit      int                 `json:"limit,omitempty" validate:"gte=0"`
	OrderBy    *OrderBy            `json:"orderBy,omitempty"`
}

// Row is one result group: group_0..group_k key columns plus metric columns.
type Row map[string]any

// AggregationSummary reports counts at each pipeline stage.
type AggregationSummary struct {
	TotalRecords    int `json:"totalRecords"`
	FilteredRecords int `json:"filteredRecords"`
	// GroupCount counts groups formed, before Limit is applied.
	GroupCount     int           `json:"groupCount"`
	ProcessingTime time.Duration `json:"processingTime"`
}

// AggregationResult is the output of Aggregate.
type AggregationResult struct {
	Groups  []Row              `json:"groups"`
	Totals  map[string]float64 `json:"totals"`
	Summary AggregationSummary `json:"summary"`
}

// TimeSeriesPoint is one non-empty bucket.
type TimeSeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// RetentionPoint is the retention of one cohort at one day offset.
type RetentionPoint struct {
	Period     int     `json:"period"`
	Retained   int     `json:"retained"`
	Percentage float64 `json:"percentage"`
}

// CohortResult is one cohort's size and retention table.
type CohortResult struct {
	Cohort    string           `json:"cohort"`
	Size      int              `json:"size"`
	Retention []RetentionPoint `json:"retention"`
}

// FunnelStepResult is the reach of one funnel step.
type FunnelStepResult struct {
	Step           string  `json:"step"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversionRate"`
	DropOffRate    float64 `json:"dropOffRate"`
}
