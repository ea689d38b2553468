package engine

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AnomalyMethod selects how outliers are scored.
type AnomalyMethod string

const (
	// AnomalyZScore flags |value-mean|/stddev above the threshold.
	AnomalyZScore AnomalyMethod = "zscore"
	// AnomalyIQR flags values outside the 1.5·IQR fences.
	AnomalyIQR AnomalyMethod = "iqr"
)

// DefaultAnomalyThreshold is the z-score cutoff used when none is given.
const DefaultAnomalyThreshold = 2.0

// iqrFence is the Tukey fence multiplier.
const iqrFence = 1.5

// spreadEpsilon is the relative spread below which a series counts as
// constant; summing equal floats leaves rounding noise in the stddev.
const spreadEpsilon = 1e-9

// Valid reports whether m is a known method.
func (m AnomalyMethod) Valid() bool {
	return m == AnomalyZScore || m == AnomalyIQR
}

// AnomalyResult is one flagged value.
type AnomalyResult struct {
	Value float64 `json:"value"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// DetectAnomalies flags outliers in values, highest score first. Index refers
// to the position in values. A series with no spread (stddev for zscore,
// IQR for iqr, up to rounding) has no anomalies. threshold <= 0 selects the default; it only
// applies to zscore.
func DetectAnomalies(values []float64, method AnomalyMethod, threshold float64) ([]AnomalyResult, error) {
	if !method.Valid() {
		return nil, newValidationError(ConfigError{
			Field:   "method",
			Rule:    "oneof",
			Message: fmt.Sprintf("unknown anomaly method %q (want zscore or iqr)", method),
		})
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	out := make([]AnomalyResult, 0)
	if len(values) == 0 {
		return out, nil
	}

	switch method {
	case AnomalyZScore:
		out = zScoreAnomalies(values, threshold)
	case AnomalyIQR:
		out = iqrAnomalies(values)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func zScoreAnomalies(values []float64, threshold float64) []AnomalyResult {
	summary := CalculateStatistics(values)
	out := make([]AnomalyResult, 0)
	if summary.Min == summary.Max || negligible(summary.StandardDeviation, summary.Min, summary.Max) {
		return out
	}
	for i, v := range values {
		score := math.Abs(stat.StdScore(v, summary.Mean, summary.StandardDeviation))
		if score > threshold {
			out = append(out, AnomalyResult{Value: v, Index: i, Score: score})
		}
	}
	return out
}

func iqrAnomalies(values []float64) []AnomalyResult {
	sorted := sortedCopy(values)
	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	out := make([]AnomalyResult, 0)
	if negligible(iqr, q1, q3) {
		return out
	}

	lower := q1 - iqrFence*iqr
	upper := q3 + iqrFence*iqr
	for i, v := range values {
		var dist float64
		switch {
		case v < lower:
			dist = lower - v
		case v > upper:
			dist = v - upper
		default:
			continue
		}
		out = append(out, AnomalyResult{Value: v, Index: i, Score: dist / iqr})
	}
	return out
}

// negligible reports whether spread is rounding noise relative to the
// magnitude of the bounds lo and hi.
func negligible(spread, lo, hi float64) bool {
	return spread <= spreadEpsilon*math.Max(math.Abs(lo), math.Abs(hi))
}
