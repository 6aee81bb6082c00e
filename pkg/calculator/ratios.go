package calculator

import (
	"fmt"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// 快照中使用的标准字段名
const (
	FieldCurrentAssets      = "current_assets"
	FieldCurrentLiabilities = "current_liabilities"
	FieldInventory          = "inventory"
	FieldCash               = "cash"
	FieldRevenue            = "revenue"
	FieldCOGS               = "cost_of_goods_sold"
	FieldNetIncome          = "net_income"
	FieldEquity             = "shareholders_equity"
	FieldTotalLiabilities   = "total_liabilities"
	FieldTotalAssets        = "total_assets"
	FieldOperatingIncome    = "operating_income"
	FieldInterestExpense    = "interest_expense"
	FieldReceivables        = "accounts_receivable"
)

// ratioDef 一个比率的固定定义：分子、分母、类别
type ratioDef struct {
	name        string
	numerator   []string // 多个字段相加；前缀 "-" 表示相减
	denominator string
	category    model.RatioCategory
}

var ratioDefs = []ratioDef{
	{"current_ratio", []string{FieldCurrentAssets}, FieldCurrentLiabilities, model.CategoryLiquidity},
	{"quick_ratio", []string{FieldCurrentAssets, "-" + FieldInventory}, FieldCurrentLiabilities, model.CategoryLiquidity},
	{"cash_ratio", []string{FieldCash}, FieldCurrentLiabilities, model.CategoryLiquidity},
	{"gross_margin", []string{FieldRevenue, "-" + FieldCOGS}, FieldRevenue, model.CategoryProfitability},
	{"net_margin", []string{FieldNetIncome}, FieldRevenue, model.CategoryProfitability},
	{"return_on_equity", []string{FieldNetIncome}, FieldEquity, model.CategoryProfitability},
	{"return_on_assets", []string{FieldNetIncome}, FieldTotalAssets, model.CategoryProfitability},
	{"debt_ratio", []string{FieldTotalLiabilities}, FieldTotalAssets, model.CategoryLeverage},
	{"debt_to_equity", []string{FieldTotalLiabilities}, FieldEquity, model.CategoryLeverage},
	{"interest_coverage", []string{FieldOperatingIncome}, FieldInterestExpense, model.CategoryLeverage},
	{"asset_turnover", []string{FieldRevenue}, FieldTotalAssets, model.CategoryEfficiency},
	{"inventory_turnover", []string{FieldCOGS}, FieldInventory, model.CategoryEfficiency},
	{"receivables_turnover", []string{FieldRevenue}, FieldReceivables, model.CategoryEfficiency},
}

// Ratios 计算快照在给定类别下的全部比率。公式是固定的；
// 分母为零或任一字段缺失时该比率标记为未定义，绝不返回 NaN/Inf，
// 也不向调用方抛异常。相同输入必然得到相同输出。
// categories 为空表示计算全部类别。
func Ratios(s model.FinancialSnapshot, categories ...model.RatioCategory) model.RatioResult {
	want := map[model.RatioCategory]bool{}
	for _, c := range categories {
		want[c] = true
	}

	out := make(model.RatioResult)
	for _, def := range ratioDefs {
		if len(want) > 0 && !want[def.category] {
			continue
		}

		num, numOK := sumFields(s, def.numerator)
		den, denOK := s.Field(def.denominator)

		rv := model.RatioValue{Category: def.category}
		if numOK && denOK && den != 0 {
			rv.Value = num / den
			rv.Defined = true
		}
		out[def.name] = rv
	}
	return out
}

func sumFields(s model.FinancialSnapshot, fields []string) (float64, bool) {
	var total float64
	for _, f := range fields {
		sign := 1.0
		if len(f) > 0 && f[0] == '-' {
			sign = -1.0
			f = f[1:]
		}
		v, ok := s.Field(f)
		if !ok {
			return 0, false
		}
		total += sign * v
	}
	return total, true
}

// MissingFields 检查快照是否缺少指定字段，返回缺失列表
func MissingFields(s model.FinancialSnapshot, fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := s.Field(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// ErrFieldMissing 计算器所需字段缺失
type ErrFieldMissing struct {
	Fields []string
}

func (e *ErrFieldMissing) Error() string {
	return fmt.Sprintf("snapshot missing required fields: %v", e.Fields)
}
