package calculator

import (
	"fmt"
	"math"
	"sort"

	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// 影响分类的加权得分阈值（百分点）
const impactEpsilon = 5.0

// 这些比率越低越好，计算影响得分时符号取反
var lowerIsBetter = map[string]bool{
	"debt_ratio":     true,
	"debt_to_equity": true,
}

// BuildScenario 对基准快照施加字段百分比增量，重算两侧比率，
// 并按配置权重比较关键比率得出影响分类。基准快照不被修改。
func BuildScenario(base model.FinancialSnapshot, name, scenarioType string, changes map[string]float64, cfg config.CalculatorConfig) model.ScenarioResult {
	modified := base.Clone()
	for field, pct := range changes {
		if v, ok := modified.Fields[field]; ok {
			modified.Fields[field] = v * (1 + pct/100)
		}
	}

	baseRatios := Ratios(base)
	modifiedRatios := Ratios(modified)

	score := impactScore(baseRatios, modifiedRatios, cfg.ImpactWeights)

	impact := model.ImpactNeutral
	if score > impactEpsilon {
		impact = model.ImpactPositive
	} else if score < -impactEpsilon {
		impact = model.ImpactNegative
	}

	return model.ScenarioResult{
		ScenarioName:     name,
		ScenarioType:     scenarioType,
		BaseSnapshot:     base,
		Changes:          changes,
		ModifiedSnapshot: modified,
		BaseRatios:       baseRatios,
		ModifiedRatios:   modifiedRatios,
		Impact:           impact,
		ImpactScore:      score,
		KeyChanges:       keyChanges(base, modified),
	}
}

// impactScore 加权求和各关键比率的相对变化（百分点）
func impactScore(base, modified model.RatioResult, weights map[string]float64) float64 {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var score float64
	for _, name := range names {
		b, okB := base[name]
		m, okM := modified[name]
		if !okB || !okM || !b.Defined || !m.Defined || b.Value == 0 {
			continue
		}
		change := (m.Value - b.Value) / math.Abs(b.Value) * 100
		if lowerIsBetter[name] {
			change = -change
		}
		score += weights[name] * change
	}
	return score
}

// keyChanges 列出变化超过 5% 的核心科目
func keyChanges(base, modified model.FinancialSnapshot) []string {
	var out []string
	for _, field := range []string{FieldRevenue, FieldNetIncome, FieldTotalAssets, FieldCash} {
		b, okB := base.Field(field)
		m, okM := modified.Field(field)
		if !okB || !okM || b == 0 {
			continue
		}
		pct := (m - b) / math.Abs(b) * 100
		if math.Abs(pct) > 5 {
			out = append(out, fmt.Sprintf("%s change: %.1f%%", field, pct))
		}
	}
	return out
}
