package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

func scenarioConfig() config.CalculatorConfig {
	return config.CalculatorConfig{
		ImpactWeights: map[string]float64{
			"net_margin":    0.4,
			"current_ratio": 0.3,
			"debt_ratio":    0.3,
		},
	}
}

func TestBuildScenario_RevenueIncrease(t *testing.T) {
	base := snapshot(map[string]float64{
		FieldRevenue:            1000000,
		FieldNetIncome:          100000,
		FieldCurrentAssets:      500000,
		FieldCurrentLiabilities: 250000,
	})

	result := BuildScenario(base, "revenue growth", "optimistic",
		map[string]float64{FieldRevenue: 20}, scenarioConfig())

	assert.InDelta(t, 1200000.0, result.ModifiedSnapshot.Fields[FieldRevenue], 1e-9)
	// 未改动字段保持不变
	assert.InDelta(t, 100000.0, result.ModifiedSnapshot.Fields[FieldNetIncome], 1e-9)
	assert.InDelta(t, 500000.0, result.ModifiedSnapshot.Fields[FieldCurrentAssets], 1e-9)

	// 基准快照不被修改
	assert.InDelta(t, 1000000.0, base.Fields[FieldRevenue], 1e-9)

	// 收入上升、净利不变 → 净利率下降
	require.True(t, result.ModifiedRatios["net_margin"].Defined)
	assert.Less(t, result.ModifiedRatios["net_margin"].Value, result.BaseRatios["net_margin"].Value)

	assert.Contains(t, result.KeyChanges, "revenue change: 20.0%")
}

func TestBuildScenario_ImpactClassification(t *testing.T) {
	base := snapshot(map[string]float64{
		FieldRevenue:            1000000,
		FieldNetIncome:          100000,
		FieldCurrentAssets:      500000,
		FieldCurrentLiabilities: 250000,
	})

	// 净利大涨 → net_margin 相对变化 +50%，加权 0.4*50 = 20 > 5 → positive
	up := BuildScenario(base, "profit surge", "optimistic",
		map[string]float64{FieldNetIncome: 50}, scenarioConfig())
	assert.Equal(t, model.ImpactPositive, up.Impact)

	down := BuildScenario(base, "profit slump", "pessimistic",
		map[string]float64{FieldNetIncome: -50}, scenarioConfig())
	assert.Equal(t, model.ImpactNegative, down.Impact)

	flat := BuildScenario(base, "no change", "baseline",
		map[string]float64{FieldNetIncome: 0}, scenarioConfig())
	assert.Equal(t, model.ImpactNeutral, flat.Impact)
	assert.Zero(t, flat.ImpactScore)
}

func TestBuildScenario_DebtRatioSignFlip(t *testing.T) {
	base := snapshot(map[string]float64{
		FieldTotalLiabilities: 500000,
		FieldTotalAssets:      1000000,
	})

	// 负债上升 → debt_ratio 上升，但方向取反后应计为负面
	result := BuildScenario(base, "more debt", "pessimistic",
		map[string]float64{FieldTotalLiabilities: 100}, scenarioConfig())
	assert.Equal(t, model.ImpactNegative, result.Impact)
}

func TestBuildScenario_UnknownFieldIgnored(t *testing.T) {
	base := snapshot(map[string]float64{FieldRevenue: 1000})

	result := BuildScenario(base, "noop", "baseline",
		map[string]float64{"nonexistent_field": 50}, scenarioConfig())
	assert.Equal(t, base.Fields, result.ModifiedSnapshot.Fields)
}
