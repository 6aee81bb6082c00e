package engine

import (
	"strings"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// 规划阶段的关键词表。命中即追加对应的计算任务；
// 没有命中任何关键词时只做检索 + 合成。
var (
	ratioKeywords = []string{
		"ratio", "liquidity", "margin", "profitability", "leverage",
		"roe", "return on equity", "return on assets", "solvency",
		"debt", "turnover", "coverage",
	}
	trendKeywords = []string{
		"trend", "over time", "growth", "trajectory", "historical change",
		"year over year", "quarter over quarter",
	}
	forecastKeywords = []string{
		"forecast", "predict", "projection", "project", "next period",
		"next quarter", "next year", "future",
	}
	anomalyKeywords = []string{
		"anomaly", "anomalies", "unusual", "outlier", "red flag",
		"irregular", "abnormal",
	}
	benchmarkKeywords = []string{
		"benchmark", "industry average", "peer", "compare to industry",
		"versus industry", "industry comparison",
	}
)

// 查询中可识别的指标名 → 快照字段
var metricAliases = map[string]string{
	"revenue":             "revenue",
	"sales":               "revenue",
	"net income":          "net_income",
	"profit":              "net_income",
	"earnings":            "net_income",
	"cash":                "cash",
	"operating income":    "operating_income",
	"total assets":        "total_assets",
	"total liabilities":   "total_liabilities",
	"inventory":           "inventory",
	"accounts receivable": "accounts_receivable",
	"equity":              "shareholders_equity",
}

// Plan 把自然语言查询分解为有序任务列表。
// 有文档范围时总是先检索；命中计算类关键词时追加对应计算任务；
// 没有关键词但点名了具体指标时，按指标追加一个趋势计算；
// 最后恒有一个合成任务。
func Plan(query, documentID string) []model.AnalysisTask {
	q := strings.ToLower(query)
	metric, metricNamed := detectMetric(q)

	var tasks []model.AnalysisTask
	tasks = append(tasks, model.AnalysisTask{Kind: model.TaskRetrieve, DocumentID: documentID})

	if documentID != "" {
		keywordHit := false
		if matchAny(q, ratioKeywords) {
			keywordHit = true
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskComputeRatios, DocumentID: documentID})
		}
		if matchAny(q, trendKeywords) {
			keywordHit = true
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskComputeTrend, DocumentID: documentID, Metric: metric})
		}
		if matchAny(q, forecastKeywords) {
			keywordHit = true
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskForecast, DocumentID: documentID, Metric: metric, Periods: 4})
		}
		if matchAny(q, anomalyKeywords) {
			keywordHit = true
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskDetectAnomaly, DocumentID: documentID})
		}
		if matchAny(q, benchmarkKeywords) {
			keywordHit = true
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskBenchmark, DocumentID: documentID})
		}
		if !keywordHit && metricNamed {
			tasks = append(tasks, model.AnalysisTask{Kind: model.TaskComputeTrend, DocumentID: documentID, Metric: metric})
		}
	}

	tasks = append(tasks, model.AnalysisTask{Kind: model.TaskSynthesize})
	return tasks
}

func matchAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// detectMetric 识别查询中的指标，返回是否有别名命中；未命中时默认 revenue
func detectMetric(q string) (string, bool) {
	// 长别名优先，避免 "net income" 被 "income" 抢先匹配
	best := ""
	bestLen := 0
	for alias, field := range metricAliases {
		if strings.Contains(q, alias) && len(alias) > bestLen {
			best = field
			bestLen = len(alias)
		}
	}
	if best == "" {
		return "revenue", false
	}
	return best, true
}
