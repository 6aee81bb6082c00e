package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecast_Linear(t *testing.T) {
	series := []float64{100, 110, 120, 130, 140, 150}

	points, err := Forecast(series, 3, MethodLinear, 1.96)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// 无噪声序列的线性外推
	assert.InDelta(t, 160.0, points[0].Value, 1e-9)
	assert.InDelta(t, 170.0, points[1].Value, 1e-9)
	assert.InDelta(t, 180.0, points[2].Value, 1e-9)
	assert.Equal(t, "t+1", points[0].Period)
}

func TestForecast_BoundsInvariant(t *testing.T) {
	cases := map[string][]float64{
		"noisy":      {100, 130, 95, 150, 120, 160, 140},
		"decreasing": {200, 180, 175, 150, 130},
		"flat":       {50, 50, 50, 50},
	}

	for name, series := range cases {
		for _, method := range []string{MethodLinear, MethodExponential} {
			points, err := Forecast(series, 5, method, 1.96)
			require.NoError(t, err, "%s/%s", name, method)
			for i, p := range points {
				assert.LessOrEqual(t, p.LowerBound, p.Value, "%s/%s point %d", name, method, i)
				assert.GreaterOrEqual(t, p.UpperBound, p.Value, "%s/%s point %d", name, method, i)
			}
		}
	}
}

func TestForecast_ExponentialWidensWithHorizon(t *testing.T) {
	series := []float64{100, 120, 90, 140, 110}

	points, err := Forecast(series, 4, MethodExponential, 1.96)
	require.NoError(t, err)

	for i := 1; i < len(points); i++ {
		prev := points[i-1].UpperBound - points[i-1].LowerBound
		cur := points[i].UpperBound - points[i].LowerBound
		assert.GreaterOrEqual(t, cur, prev)
	}
}

func TestForecast_Errors(t *testing.T) {
	_, err := Forecast([]float64{1, 2}, 3, MethodLinear, 1.96)
	assert.Error(t, err, "series too short")

	_, err = Forecast([]float64{1, 2, 3}, 0, MethodLinear, 1.96)
	assert.Error(t, err, "non-positive periods")

	_, err = Forecast([]float64{1, 2, 3}, 2, "arima", 1.96)
	assert.Error(t, err, "unknown method")
}
