package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

func benchmarkTable() map[string]model.RatioBenchmark {
	return map[string]model.RatioBenchmark{
		"current_ratio": {
			Mean: 1.8, Median: 1.6,
			Percentiles: map[float64]float64{10: 1.0, 25: 1.3, 50: 1.6, 75: 2.0, 90: 2.5},
		},
		"net_margin": {
			Mean: 0.08, Median: 0.06,
			Percentiles: map[float64]float64{10: 0.0, 25: 0.03, 50: 0.06, 75: 0.10, 90: 0.15},
		},
	}
}

func TestPercentileRank_Interpolation(t *testing.T) {
	breakpoints := map[float64]float64{10: 1.0, 50: 2.0, 90: 3.0}

	// 1.5 在 1.0 与 2.0 正中间 → 10 与 50 的中点
	assert.InDelta(t, 30.0, PercentileRank(1.5, breakpoints), 1e-9)
	// 断点命中
	assert.InDelta(t, 50.0, PercentileRank(2.0, breakpoints), 1e-9)
	// 两端截断
	assert.InDelta(t, 10.0, PercentileRank(0.2, breakpoints), 1e-9)
	assert.InDelta(t, 90.0, PercentileRank(99.0, breakpoints), 1e-9)
}

func TestPercentileRank_EmptyTable(t *testing.T) {
	assert.InDelta(t, 50.0, PercentileRank(1.0, nil), 1e-9)
}

func TestBenchmark(t *testing.T) {
	ratios := model.RatioResult{
		"current_ratio": {Value: 2.0, Defined: true, Category: model.CategoryLiquidity},
		"net_margin":    {Value: 0.01, Defined: true, Category: model.CategoryProfitability},
		"debt_ratio":    {Value: 0.5, Defined: true, Category: model.CategoryLeverage}, // 表中没有，跳过
	}

	result := Benchmark(ratios, benchmarkTable(), "technology", "medium")

	require.Contains(t, result.RatiosAnalysis, "current_ratio")
	require.Contains(t, result.RatiosAnalysis, "net_margin")
	assert.NotContains(t, result.RatiosAnalysis, "debt_ratio")

	cur := result.RatiosAnalysis["current_ratio"]
	assert.InDelta(t, 75.0, cur.Percentile, 1e-9)
	assert.Equal(t, "above_average", cur.Performance)

	nm := result.RatiosAnalysis["net_margin"]
	// 0.01 在 p10=0.0 与 p25=0.03 之间 → 10 + 15*(0.01/0.03) = 15
	assert.InDelta(t, 15.0, nm.Percentile, 1e-9)
	assert.Equal(t, "below_average", nm.Performance)

	// 整体得分 = 百分位均值 / 100
	assert.InDelta(t, (75.0+nm.Percentile)/2/100, result.PerformanceScore, 1e-9)
	assert.GreaterOrEqual(t, result.PerformanceScore, 0.0)
	assert.LessOrEqual(t, result.PerformanceScore, 1.0)

	assert.NotEmpty(t, result.Strengths)
	assert.NotEmpty(t, result.Weaknesses)
	assert.NotEmpty(t, result.Recommendations)
	assert.Contains(t, result.Rankings, "overall")
}

func TestBenchmark_UndefinedRatiosSkipped(t *testing.T) {
	ratios := model.RatioResult{
		"current_ratio": {Defined: false, Category: model.CategoryLiquidity},
	}
	result := Benchmark(ratios, benchmarkTable(), "retail", "")
	assert.Empty(t, result.RatiosAnalysis)
	assert.Zero(t, result.PerformanceScore)
}
