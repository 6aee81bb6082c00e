package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

func TestTrend_Increasing(t *testing.T) {
	series := []float64{100, 110, 120, 130, 140, 150}

	trend, err := Trend(series, 0.01)
	require.NoError(t, err)

	assert.Equal(t, model.TrendIncreasing, trend.Direction)
	assert.Greater(t, trend.RSquared, 0.95)
	assert.InDelta(t, 10.0, trend.Slope, 1e-9)
	assert.InDelta(t, 160.0, trend.ForecastNextPeriod, 1e-9)
	assert.Less(t, trend.PValue, 0.05)
}

func TestTrend_Decreasing(t *testing.T) {
	series := []float64{150, 140, 130, 120, 110, 100}

	trend, err := Trend(series, 0.01)
	require.NoError(t, err)
	assert.Equal(t, model.TrendDecreasing, trend.Direction)
	assert.Negative(t, trend.Slope)
}

func TestTrend_Flat(t *testing.T) {
	// 斜率远小于均值幅度的 1%
	series := []float64{1000, 1000.5, 999.8, 1000.2, 1000.1}

	trend, err := Trend(series, 0.01)
	require.NoError(t, err)
	assert.Equal(t, model.TrendFlat, trend.Direction)
}

func TestTrend_ConstantSeries(t *testing.T) {
	series := []float64{50, 50, 50, 50}

	trend, err := Trend(series, 0.01)
	require.NoError(t, err)
	assert.Equal(t, model.TrendFlat, trend.Direction)
	assert.Zero(t, trend.Strength)
	assert.Zero(t, trend.Volatility)
}

func TestTrend_TooShort(t *testing.T) {
	_, err := Trend([]float64{1}, 0.01)
	assert.Error(t, err)
}

func TestTrend_VolatilityNonNegative(t *testing.T) {
	series := []float64{100, 130, 90, 150, 80, 160}

	trend, err := Trend(series, 0.01)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, trend.Volatility, 0.0)
}

func TestTrend_Deterministic(t *testing.T) {
	series := []float64{10, 12, 15, 13, 18, 21}

	a, err := Trend(series, 0.01)
	require.NoError(t, err)
	b, err := Trend(series, 0.01)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
