package calculator

import (
	"fmt"
	"math"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// 预测方法
const (
	MethodLinear      = "linear"
	MethodExponential = "exponential"
)

// 指数平滑系数，对月度财务序列的经验取值
const sesAlpha = 0.3

// Forecast 基于历史序列外推 n 期。区间宽度为残差标准差乘以置信倍数，
// 每个点恒满足 lower ≤ value ≤ upper。相同输入必然得到相同输出。
func Forecast(series []float64, n int, method string, multiplier float64) ([]model.ForecastPoint, error) {
	if len(series) < 3 {
		return nil, fmt.Errorf("forecast needs at least 3 points, got %d", len(series))
	}
	if n <= 0 {
		return nil, fmt.Errorf("forecast periods must be positive, got %d", n)
	}
	if multiplier <= 0 {
		multiplier = 1.96
	}

	switch method {
	case "", MethodLinear:
		return linearForecast(series, n, multiplier), nil
	case MethodExponential:
		return exponentialForecast(series, n, multiplier), nil
	default:
		return nil, fmt.Errorf("unsupported forecasting method: %s", method)
	}
}

func linearForecast(series []float64, n int, multiplier float64) []model.ForecastPoint {
	slope, intercept, _ := linregress(series)

	// 残差标准差
	var ss float64
	for i, v := range series {
		r := v - (slope*float64(i) + intercept)
		ss += r * r
	}
	stderr := math.Sqrt(ss / float64(len(series)))

	points := make([]model.ForecastPoint, 0, n)
	for i := 1; i <= n; i++ {
		v := slope*float64(len(series)-1+i) + intercept
		points = append(points, makePoint(i, v, multiplier*stderr))
	}
	return points
}

// exponentialForecast 简单指数平滑：水平外推，残差取一步预测误差
func exponentialForecast(series []float64, n int, multiplier float64) []model.ForecastPoint {
	level := series[0]
	var ss float64
	count := 0
	for _, v := range series[1:] {
		err := v - level
		ss += err * err
		count++
		level += sesAlpha * err
	}
	stderr := 0.0
	if count > 0 {
		stderr = math.Sqrt(ss / float64(count))
	}

	points := make([]model.ForecastPoint, 0, n)
	for i := 1; i <= n; i++ {
		// 平滑预测为常数水平，区间随步长放大
		width := multiplier * stderr * math.Sqrt(float64(i))
		points = append(points, makePoint(i, level, width))
	}
	return points
}

func makePoint(step int, value, width float64) model.ForecastPoint {
	if width < 0 {
		width = 0
	}
	return model.ForecastPoint{
		Period:     fmt.Sprintf("t+%d", step),
		Value:      value,
		LowerBound: value - width,
		UpperBound: value + width,
	}
}
