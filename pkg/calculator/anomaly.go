package calculator

import (
	"fmt"
	"math"
	"sort"

	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// DetectRatioAnomalies 将比率与配置的正常区间比对。恰好落在边界上不算异常。
// 严重度按越界距离相对区间宽度分级：medium/high 的倍数阈值来自配置。
func DetectRatioAnomalies(ratios model.RatioResult, cfg config.CalculatorConfig) []model.Anomaly {
	names := make([]string, 0, len(ratios))
	for name := range ratios {
		names = append(names, name)
	}
	// 遍历序固定，保证输出可复现
	sort.Strings(names)

	var anomalies []model.Anomaly
	for _, name := range names {
		rv := ratios[name]
		if !rv.Defined {
			continue
		}
		rng, ok := cfg.RatioRanges[name]
		if !ok {
			continue
		}
		if rv.Value >= rng.Low && rv.Value <= rng.High {
			continue
		}

		var dist float64
		if rv.Value < rng.Low {
			dist = rng.Low - rv.Value
		} else {
			dist = rv.Value - rng.High
		}

		anomalies = append(anomalies, model.Anomaly{
			Kind:          "ratio_anomaly",
			Metric:        name,
			ObservedValue: rv.Value,
			ExpectedLow:   rng.Low,
			ExpectedHigh:  rng.High,
			Severity:      widthSeverity(dist, rng.High-rng.Low, cfg),
			Description: fmt.Sprintf("%s of %.2f is outside normal range (%.2f-%.2f)",
				name, rv.Value, rng.Low, rng.High),
		})
	}
	return anomalies
}

// widthSeverity 越界距离相对区间宽度的严重度分级
func widthSeverity(dist, width float64, cfg config.CalculatorConfig) model.Severity {
	if width <= 0 {
		return model.SeverityHigh
	}
	switch {
	case dist <= cfg.SeverityMediumFactor*width:
		return model.SeverityLow
	case dist <= cfg.SeverityHighFactor*width:
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}

// DetectSeriesAnomalies 时序点的 z-score 异常。
// 期望区间为 mean ± threshold·std，严重度沿用区间宽度分级策略。
func DetectSeriesAnomalies(metric string, series []float64, cfg config.CalculatorConfig) []model.Anomaly {
	if len(series) < 3 {
		return nil
	}

	var mean float64
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	var ss float64
	for _, v := range series {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(series)))
	if std == 0 {
		return nil
	}

	low := mean - cfg.ZScoreThreshold*std
	high := mean + cfg.ZScoreThreshold*std

	var anomalies []model.Anomaly
	for i, v := range series {
		z := (v - mean) / std
		if math.Abs(z) <= cfg.ZScoreThreshold {
			continue
		}

		var dist float64
		if v < low {
			dist = low - v
		} else {
			dist = v - high
		}

		anomalies = append(anomalies, model.Anomaly{
			Kind:          "zscore_anomaly",
			Metric:        metric,
			ObservedValue: v,
			ExpectedLow:   low,
			ExpectedHigh:  high,
			Severity:      widthSeverity(dist, high-low, cfg),
			Description:   fmt.Sprintf("point %d of %s deviates from series mean (z-score %.2f)", i, metric, z),
		})
	}
	return anomalies
}

// RiskLevel 由异常的数量与严重度汇总整体风险
func RiskLevel(anomalies []model.Anomaly) string {
	if len(anomalies) == 0 {
		return "low"
	}

	var high, medium int
	for _, a := range anomalies {
		switch a.Severity {
		case model.SeverityHigh:
			high++
		case model.SeverityMedium:
			medium++
		}
	}

	switch {
	case high >= 3:
		return "critical"
	case high >= 1 || medium >= 3:
		return "high"
	case medium >= 1:
		return "medium"
	default:
		return "low"
	}
}

// AnomalyConfidence 检测结论的置信度：异常越多、越严重，结论越可信
func AnomalyConfidence(anomalies []model.Anomaly) float64 {
	if len(anomalies) == 0 {
		return 0
	}
	var high int
	for _, a := range anomalies {
		if a.Severity == model.SeverityHigh {
			high++
		}
	}
	return math.Min(0.9, 0.5+float64(len(anomalies))*0.1+float64(high)*0.1)
}

// AnomalyRecommendations 按异常类型与严重度生成建议
func AnomalyRecommendations(anomalies []model.Anomaly) []string {
	if len(anomalies) == 0 {
		return []string{"No anomalies detected. Financial data appears normal."}
	}

	var hasRatio, hasSeries, hasHigh bool
	for _, a := range anomalies {
		switch a.Kind {
		case "ratio_anomaly":
			hasRatio = true
		case "zscore_anomaly":
			hasSeries = true
		}
		if a.Severity == model.SeverityHigh {
			hasHigh = true
		}
	}

	var recs []string
	if hasRatio {
		recs = append(recs, "Review financial ratios that are outside normal ranges. Consider industry benchmarks.")
	}
	if hasSeries {
		recs = append(recs, "Investigate sudden changes in financial trends. Verify data accuracy and business events.")
	}
	if hasHigh {
		recs = append(recs, "Address high-severity anomalies immediately. Consider consulting with financial experts.")
	}
	if len(anomalies) > 5 {
		recs = append(recs, "Multiple anomalies detected. Consider comprehensive financial review and audit.")
	}
	return recs
}
