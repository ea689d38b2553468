package engine

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Percentiles holds the fixed percentile set reported by CalculateStatistics.
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// StatisticsSummary is the descriptive summary of a numeric sequence.
// Variance and standard deviation are population statistics.
type StatisticsSummary struct {
	Count             int         `json:"count"`
	Sum               float64     `json:"sum"`
	Mean              float64     `json:"mean"`
	Median            float64     `json:"median"`
	Mode              []float64   `json:"mode"`
	Min               float64     `json:"min"`
	Max               float64     `json:"max"`
	Variance          float64     `json:"variance"`
	StandardDeviation float64     `json:"standardDeviation"`
	Percentiles       Percentiles `json:"percentiles"`
}

// CalculateStatistics summarizes values. Empty input yields a zero summary
// with an empty (non-nil) mode.
func CalculateStatistics(values []float64) StatisticsSummary {
	summary := StatisticsSummary{Mode: []float64{}}
	if len(values) == 0 {
		return summary
	}

	data := stats.Float64Data(values)
	sorted := sortedCopy(values)

	// Errors only signal empty input, ruled out above.
	summary.Count = len(values)
	summary.Sum, _ = stats.Sum(data)
	summary.Mean, _ = stats.Mean(data)
	summary.Variance, _ = stats.PopulationVariance(data)
	summary.StandardDeviation, _ = stats.StandardDeviationPopulation(data)
	summary.Min = sorted[0]
	summary.Max = sorted[len(sorted)-1]
	summary.Mode = modes(values)
	summary.Percentiles = Percentiles{
		P25: Percentile(sorted, 25),
		P50: Percentile(sorted, 50),
		P75: Percentile(sorted, 75),
		P95: Percentile(sorted, 95),
		P99: Percentile(sorted, 99),
	}
	summary.Median = summary.Percentiles.P50
	return summary
}

// Percentile interpolates linearly between order statistics of an ascending
// slice: rank = p/100*(n-1). p is clamped to [0, 100]; empty input gives 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))

	rank := p / 100 * float64(n-1)
	lo := math.Floor(rank)
	hi := math.Ceil(rank)
	if lo == hi {
		return sorted[int(lo)]
	}
	frac := rank - lo
	a, b := sorted[int(lo)], sorted[int(hi)]
	return a + (b-a)*frac
}

// Median is the 50th percentile of values (which need not be sorted).
func Median(values []float64) float64 {
	return Percentile(sortedCopy(values), 50)
}

// modes returns every value that shares the highest frequency, ascending.
func modes(values []float64) []float64 {
	freq := make(map[float64]int, len(values))
	best := 0
	for _, v := range values {
		freq[v]++
		if freq[v] > best {
			best = freq[v]
		}
	}
	out := make([]float64, 0)
	for v, c := range freq {
		if c == best {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
