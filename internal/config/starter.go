package config

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/knadh/koanf/parsers/yaml"

	"github.com/spektr-org/insight/engine"
	"github.com/spektr-org/insight/schema"
)

// ============================================================================
// STARTER JOB — Draft reports from a discovered schema
// ============================================================================
// Every measure gets an aggregate under its default aggregation, grouped by
// the lead dimension, and continuous measures also get an outlier scan.
// Each dimension hierarchy gets a parent/child breakdown and each temporal
// dimension a trend: a time series when its values parse as dates, an
// aggregate over the labels otherwise.
// ============================================================================

// Starter drafts a job over source from a discovered schema.
func Starter(sch *schema.Config, source SourceConfig) *Config {
	cfg := Default()
	cfg.Source = source

	d := &drafter{sch: sch, taken: make(map[string]bool)}
	lead, hasLead := leadDimension(sch)
	for _, m := range sch.Measures {
		d.measureReports(m, lead, hasLead)
	}
	for _, dim := range sch.Dimensions {
		if dim.Parent != "" {
			d.breakdown(dim)
		}
	}
	for _, dim := range sch.Dimensions {
		if dim.IsTemporal {
			d.trend(dim)
		}
	}

	cfg.Reports = d.reports
	return cfg
}

// EncodeYAML renders c as a job file Load reads back.
func (c *Config) EncodeYAML() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return yaml.Parser().Marshal(tree)
}

// leadDimension picks the dimension measures are grouped by: a low or
// medium cardinality, non-temporal, non-bool one, preferring the root of a
// hierarchy and then the lower cardinality. Column order breaks ties.
func leadDimension(sch *schema.Config) (schema.DimensionMeta, bool) {
	var best schema.DimensionMeta
	bestRank := 0
	for _, d := range sch.Dimensions {
		if rank := leadRank(sch, d); rank > bestRank {
			best, bestRank = d, rank
		}
	}
	return best, bestRank > 0
}

func leadRank(sch *schema.Config, d schema.DimensionMeta) int {
	if d.IsTemporal || d.Type == schema.TypeBool {
		return 0
	}
	var rank int
	switch d.CardinalityHint {
	case schema.CardinalityLow:
		rank = 2
	case schema.CardinalityMedium:
		rank = 1
	default:
		return 0
	}
	if d.Parent == "" && len(sch.Children(d.Key)) > 0 {
		rank += 2
	}
	return rank
}

func aggregationFor(m schema.MeasureMeta) engine.Aggregation {
	if m.DefaultAggregation == schema.AggregateAverage {
		return engine.AggAverage
	}
	return engine.AggSum
}

// ============================================================================
// DRAFTER
// ============================================================================

type drafter struct {
	sch     *schema.Config
	reports []Report
	taken   map[string]bool
}

func (d *drafter) add(r Report) {
	name := r.Name
	for i := 2; d.taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", r.Name, i)
	}
	d.taken[name] = true
	r.Name = name
	d.reports = append(d.reports, r)
}

// primaryMetric is the first measure under its default aggregation, or a
// record count of field when the schema has no measures.
func (d *drafter) primaryMetric(field string) (engine.AggregationMetric, string) {
	if len(d.sch.Measures) > 0 {
		m := d.sch.Measures[0]
		return engine.AggregationMetric{Field: m.Key, Aggregation: aggregationFor(m)}, m.DisplayName
	}
	return engine.AggregationMetric{Field: field, Aggregation: engine.AggCount}, "Records"
}

func (d *drafter) measureReports(m schema.MeasureMeta, lead schema.DimensionMeta, hasLead bool) {
	metric := engine.AggregationMetric{Field: m.Key, Aggregation: aggregationFor(m)}
	agg := &engine.AggregationConfig{
		Metrics: []engine.AggregationMetric{metric},
		OrderBy: &engine.OrderBy{Field: metric.Column(), Direction: engine.SortDesc},
	}

	r := Report{Kind: KindAggregate, Aggregate: agg}
	if hasLead {
		agg.GroupBy = []string{lead.Key}
		r.Name = m.Key + "_by_" + lead.Key
		r.Title = m.DisplayName + " by " + lead.DisplayName
	} else {
		agg.OrderBy = nil
		r.Name = m.Key + "_total"
		r.Title = "Total " + m.DisplayName
	}
	d.add(r)

	if m.HasDecimals {
		d.add(Report{
			Name:      m.Key + "_outliers",
			Title:     m.DisplayName + " outliers",
			Kind:      KindAnomalies,
			Anomalies: &AnomalyReport{Field: m.Key, Method: engine.AnomalyZScore},
		})
	}
}

func (d *drafter) breakdown(child schema.DimensionMeta) {
	parent, ok := d.sch.Dimension(child.Parent)
	if !ok {
		return
	}
	metric, label := d.primaryMetric(child.Key)
	d.add(Report{
		Name:  parent.Key + "_" + child.Key + "_breakdown",
		Title: fmt.Sprintf("%s by %s and %s", label, parent.DisplayName, child.DisplayName),
		Kind:  KindAggregate,
		Aggregate: &engine.AggregationConfig{
			GroupBy: []string{parent.Key, child.Key},
			Metrics: []engine.AggregationMetric{metric},
			OrderBy: &engine.OrderBy{Field: "group_0", Direction: engine.SortAsc},
		},
	})
}

func (d *drafter) trend(dim schema.DimensionMeta) {
	metric, label := d.primaryMetric(dim.Key)

	if len(d.sch.Measures) > 0 && parsesAsDates(dim.SampleValues) {
		period := engine.PeriodMonth
		if dim.TemporalFormat == "yyyy" {
			period = engine.PeriodYear
		}
		d.add(Report{
			Name:  metric.Field + "_per_" + string(period) + "_by_" + dim.Key,
			Title: fmt.Sprintf("%s per %s (%s)", label, period, dim.DisplayName),
			Kind:  KindTimeSeries,
			TimeSeries: &TimeSeriesReport{
				DateField:  dim.Key,
				ValueField: metric.Field,
				Period:     period,
			},
		})
		return
	}

	d.add(Report{
		Name:  metric.Field + "_by_" + dim.Key,
		Title: label + " by " + dim.DisplayName,
		Kind:  KindAggregate,
		Aggregate: &engine.AggregationConfig{
			GroupBy: []string{dim.Key},
			Metrics: []engine.AggregationMetric{metric},
		},
	})
}

func parsesAsDates(samples []string) bool {
	if len(samples) == 0 {
		return false
	}
	for _, s := range samples {
		if _, ok := engine.ToTime(s, nil); !ok {
			return false
		}
	}
	return true
}
