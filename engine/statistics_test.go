package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// STATISTICS TESTS
// ============================================================================

func TestCalculateStatistics(t *testing.T) {
	s := CalculateStatistics([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 40.0, s.Sum)
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 4.5, s.Median)
	assert.Equal(t, []float64{4}, s.Mode)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 4.0, s.Variance, 1e-9)
	assert.InDelta(t, 2.0, s.StandardDeviation, 1e-9)
	assert.InDelta(t, 4.0, s.Percentiles.P25, 1e-9)
	assert.InDelta(t, 4.5, s.Percentiles.P50, 1e-9)
	assert.InDelta(t, 5.5, s.Percentiles.P75, 1e-9)
}

func TestCalculateStatisticsEmpty(t *testing.T) {
	s := CalculateStatistics(nil)
	assert.Equal(t, StatisticsSummary{Mode: []float64{}}, s)
	assert.NotNil(t, s.Mode)
}

func TestCalculateStatisticsConstantSeries(t *testing.T) {
	s := CalculateStatistics([]float64{4, 4, 4, 4})
	assert.Equal(t, 0.0, s.Variance)
	assert.Equal(t, 0.0, s.StandardDeviation)
	assert.Equal(t, []float64{4}, s.Mode)
}

func TestModeTies(t *testing.T) {
	s := CalculateStatistics([]float64{3, 1, 3, 1, 2})
	assert.Equal(t, []float64{1, 3}, s.Mode)
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	assert.Equal(t, 10.0, Percentile(sorted, 0))
	assert.Equal(t, 40.0, Percentile(sorted, 100))
	assert.InDelta(t, 25.0, Percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 17.5, Percentile(sorted, 25), 1e-9)
	assert.Equal(t, 40.0, Percentile(sorted, 250), "rank is clamped")
	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 95))
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	values := []float64{9, 1, 5}
	assert.Equal(t, 5.0, Median(values))
	assert.Equal(t, []float64{9, 1, 5}, values)
}

func TestPercentilesAreMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		values := make([]float64, 1+rng.Intn(40))
		for i := range values {
			values[i] = rng.NormFloat64() * 100
		}
		p := CalculateStatistics(values).Percentiles
		require.LessOrEqual(t, p.P25, p.P50)
		require.LessOrEqual(t, p.P50, p.P75)
		require.LessOrEqual(t, p.P75, p.P95)
		require.LessOrEqual(t, p.P95, p.P99)
	}
}

// ============================================================================
// ANOMALY TESTS
// ============================================================================

func TestDetectAnomaliesZScore(t *testing.T) {
	got, err := DetectAnomalies([]float64{1, 2, 3, 4, 5, 100}, AnomalyZScore, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Value)
	assert.Equal(t, 5, got[0].Index)
	assert.Greater(t, got[0].Score, 2.0)
}

func TestDetectAnomaliesDefaultThreshold(t *testing.T) {
	withDefault, err := DetectAnomalies([]float64{1, 2, 3, 4, 5, 100}, AnomalyZScore, 0)
	require.NoError(t, err)
	explicit, err := DetectAnomalies([]float64{1, 2, 3, 4, 5, 100}, AnomalyZScore, DefaultAnomalyThreshold)
	require.NoError(t, err)
	assert.Equal(t, explicit, withDefault)
}

func TestDetectAnomaliesIQR(t *testing.T) {
	values := []float64{10, 12, 11, 13, 12, 11, 50, -20}
	got, err := DetectAnomalies(values, AnomalyIQR, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// q1 = 10.75, q3 = 12.25, iqr = 1.5, fences = [8.5, 14.5]
	assert.Equal(t, 50.0, got[0].Value)
	assert.Equal(t, 6, got[0].Index)
	assert.InDelta(t, (50-14.5)/1.5, got[0].Score, 1e-9)
	assert.Equal(t, -20.0, got[1].Value)
	assert.Equal(t, 7, got[1].Index)
	assert.InDelta(t, (8.5+20)/1.5, got[1].Score, 1e-9)
}

func TestDetectAnomaliesDegenerateSeries(t *testing.T) {
	for _, method := range []AnomalyMethod{AnomalyZScore, AnomalyIQR} {
		for _, threshold := range []float64{0, 0.1, 2, 10} {
			got, err := DetectAnomalies([]float64{4, 4, 4, 4}, method, threshold)
			require.NoError(t, err)
			assert.Empty(t, got, "method=%s threshold=%v", method, threshold)
		}
	}
}

func TestDetectAnomaliesRoundingNoise(t *testing.T) {
	series := [][]float64{
		{0.1, 0.1, 0.1},
		{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1},
		{1e6 + 0.3, 1e6 + 0.3, 1e6 + 0.3, 1e6 + 0.3},
	}
	for _, values := range series {
		for _, method := range []AnomalyMethod{AnomalyZScore, AnomalyIQR} {
			got, err := DetectAnomalies(values, method, 0.5)
			require.NoError(t, err)
			assert.Empty(t, got, "method=%s values=%v", method, values)
		}
	}

	// Tiny magnitudes still have a real spread.
	got, err := DetectAnomalies([]float64{1e-12, 1e-12, 1e-12, 1e-12, 1e-12, 1e-9}, AnomalyZScore, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Index)
}

func TestDetectAnomaliesEmptyAndUnknown(t *testing.T) {
	got, err := DetectAnomalies(nil, AnomalyZScore, 2)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = DetectAnomalies([]float64{1, 2}, "mad", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
