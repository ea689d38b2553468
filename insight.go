// Package insight provides a domain-agnostic analytics aggregation engine.
//
// Usage:
//
//	import "github.com/spektr-org/insight/engine"
//
//	result, err := engine.Aggregate(engine.NewSliceView(records), engine.AggregationConfig{
//	    GroupBy: []string{"region"},
//	    Metrics: []engine.AggregationMetric{{Field: "amt", Aggregation: engine.AggSum}},
//	})
//
// Records are nested string-keyed maps addressed with dot paths
// ("user.geo.region"). The engine groups, filters and aggregates them, and
// also computes time series, cohort retention, funnels, descriptive
// statistics and anomalies. It never writes to its input and never calls
// any external service.
//
// The helpers package loads records from CSV, JSON, NDJSON, Excel and
// SQLite sources; cmd/insight runs a YAML job of reports over them.
package insight
