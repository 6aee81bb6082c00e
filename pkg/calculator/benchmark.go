package calculator

import (
	"fmt"
	"sort"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Benchmark 将公司比率与外部提供的行业分布对标。
// 百分位在给定断点之间线性插值，整体得分为各比率百分位的均值归一到 [0,1]。
func Benchmark(companyRatios model.RatioResult, table map[string]model.RatioBenchmark, industry, companySize string) model.BenchmarkResult {
	result := model.BenchmarkResult{
		Industry:       industry,
		CompanySize:    companySize,
		RatiosAnalysis: make(map[string]model.BenchmarkEntry),
		Rankings:       make(map[string]string),
	}

	names := make([]string, 0, len(companyRatios))
	for name := range companyRatios {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	var count int
	categoryPercentiles := map[model.RatioCategory][]float64{}

	for _, name := range names {
		rv := companyRatios[name]
		bm, ok := table[name]
		if !ok || !rv.Defined {
			continue
		}

		pct := PercentileRank(rv.Value, bm.Percentiles)
		perf := performanceLabel(pct)

		result.RatiosAnalysis[name] = model.BenchmarkEntry{
			CompanyValue:   rv.Value,
			IndustryMean:   bm.Mean,
			IndustryMedian: bm.Median,
			Percentile:     pct,
			Performance:    perf,
			Interpretation: interpret(name, rv.Value, bm.Mean, perf),
		}

		total += pct
		count++
		categoryPercentiles[rv.Category] = append(categoryPercentiles[rv.Category], pct)

		switch perf {
		case "above_average", "excellent":
			result.Strengths = append(result.Strengths,
				fmt.Sprintf("%s: %.2f (above industry average)", name, rv.Value))
		case "below_average":
			result.Weaknesses = append(result.Weaknesses,
				fmt.Sprintf("%s: %.2f (below industry average)", name, rv.Value))
			result.Recommendations = append(result.Recommendations, recommendation(name))
		}
	}

	if count > 0 {
		result.PerformanceScore = total / float64(count) / 100
	}

	for cat, pcts := range categoryPercentiles {
		var sum float64
		for _, p := range pcts {
			sum += p
		}
		result.Rankings[string(cat)] = performanceLabel(sum / float64(len(pcts)))
	}
	if count > 0 {
		result.Rankings["overall"] = performanceLabel(result.PerformanceScore * 100)
	}

	return result
}

// PercentileRank 在百分位断点表上线性插值，越界截断到首尾断点
func PercentileRank(value float64, breakpoints map[float64]float64) float64 {
	if len(breakpoints) == 0 {
		return 50
	}

	pcts := make([]float64, 0, len(breakpoints))
	for p := range breakpoints {
		pcts = append(pcts, p)
	}
	sort.Float64s(pcts)

	if value <= breakpoints[pcts[0]] {
		return pcts[0]
	}
	last := pcts[len(pcts)-1]
	if value >= breakpoints[last] {
		return last
	}

	for i := 1; i < len(pcts); i++ {
		lo, hi := pcts[i-1], pcts[i]
		vlo, vhi := breakpoints[lo], breakpoints[hi]
		if value > vhi {
			continue
		}
		if vhi == vlo {
			return hi
		}
		return lo + (hi-lo)*(value-vlo)/(vhi-vlo)
	}
	return last
}

func performanceLabel(percentile float64) string {
	switch {
	case percentile >= 80:
		return "excellent"
	case percentile >= 60:
		return "above_average"
	case percentile >= 40:
		return "average"
	default:
		return "below_average"
	}
}

func interpret(name string, value, industryMean float64, perf string) string {
	switch perf {
	case "below_average":
		return fmt.Sprintf("%s of %.2f is below industry average (%.2f).", name, value, industryMean)
	case "average":
		return fmt.Sprintf("%s of %.2f is in line with industry average (%.2f).", name, value, industryMean)
	case "above_average":
		return fmt.Sprintf("%s of %.2f is above industry average (%.2f).", name, value, industryMean)
	default:
		return fmt.Sprintf("%s of %.2f significantly exceeds industry average (%.2f).", name, value, industryMean)
	}
}

func recommendation(name string) string {
	switch name {
	case "current_ratio":
		return "Improve liquidity by increasing current assets or reducing current liabilities"
	case "quick_ratio":
		return "Improve quick ratio by reducing inventory or increasing cash and receivables"
	case "debt_to_equity", "debt_ratio":
		return "Review capital structure against industry leverage norms"
	case "gross_margin", "net_margin":
		return "Improve profitability through better pricing or cost management"
	case "return_on_equity", "return_on_assets":
		return "Improve returns through better operational efficiency"
	default:
		return fmt.Sprintf("Review %s against industry peers", name)
	}
}
