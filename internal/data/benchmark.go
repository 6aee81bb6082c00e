package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// BenchmarkRepo 行业参考分布仓库。优先读库，库里没有对应行业时
// 回落到内置的通用分布。
type BenchmarkRepo struct {
	data *Data
	log  *log.Helper
}

// NewBenchmarkRepo 创建对标数据仓库
func NewBenchmarkRepo(data *Data, logger log.Logger) *BenchmarkRepo {
	return &BenchmarkRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Table 取某行业（可选规模）的参考分布
func (r *BenchmarkRepo) Table(ctx context.Context, industry, companySize string) (map[string]model.RatioBenchmark, error) {
	table, err := r.query(ctx, industry, companySize)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 && companySize != "" {
		// 没有分规模的数据时退回行业整体
		table, err = r.query(ctx, industry, "")
		if err != nil {
			return nil, err
		}
	}
	if len(table) == 0 {
		r.log.WithContext(ctx).Warnf("no benchmark rows for industry %q, using builtin defaults", industry)
		return defaultBenchmarks, nil
	}
	return table, nil
}

func (r *BenchmarkRepo) query(ctx context.Context, industry, companySize string) (map[string]model.RatioBenchmark, error) {
	rows, err := r.data.db.QueryContext(ctx, `
		SELECT ratio_name, mean, median, percentiles
		FROM industry_benchmarks
		WHERE industry = $1 AND company_size = $2`, industry, companySize)
	if err != nil {
		return nil, fmt.Errorf("query benchmarks: %w", err)
	}
	defer rows.Close()

	table := map[string]model.RatioBenchmark{}
	for rows.Next() {
		var name string
		var bm model.RatioBenchmark
		var payload []byte
		if err := rows.Scan(&name, &bm.Mean, &bm.Median, &payload); err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		// JSON 对象键是字符串，转回百分位数值键
		raw := map[string]float64{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal percentiles: %w", err)
		}
		bm.Percentiles = make(map[float64]float64, len(raw))
		for k, v := range raw {
			p, err := strconv.ParseFloat(k, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid percentile key %q: %w", k, err)
			}
			bm.Percentiles[p] = v
		}
		table[name] = bm
	}
	return table, rows.Err()
}

// 内置的通用行业分布，库里没数据时兜底
var defaultBenchmarks = map[string]model.RatioBenchmark{
	"current_ratio": {
		Mean: 1.8, Median: 1.6,
		Percentiles: map[float64]float64{10: 0.9, 25: 1.2, 50: 1.6, 75: 2.2, 90: 3.0},
	},
	"quick_ratio": {
		Mean: 1.1, Median: 1.0,
		Percentiles: map[float64]float64{10: 0.5, 25: 0.8, 50: 1.0, 75: 1.4, 90: 1.9},
	},
	"net_margin": {
		Mean: 0.08, Median: 0.06,
		Percentiles: map[float64]float64{10: -0.02, 25: 0.02, 50: 0.06, 75: 0.12, 90: 0.20},
	},
	"gross_margin": {
		Mean: 0.38, Median: 0.35,
		Percentiles: map[float64]float64{10: 0.15, 25: 0.25, 50: 0.35, 75: 0.50, 90: 0.65},
	},
	"return_on_equity": {
		Mean: 0.12, Median: 0.10,
		Percentiles: map[float64]float64{10: 0.00, 25: 0.05, 50: 0.10, 75: 0.18, 90: 0.28},
	},
	"debt_ratio": {
		Mean: 0.52, Median: 0.50,
		Percentiles: map[float64]float64{10: 0.20, 25: 0.35, 50: 0.50, 75: 0.65, 90: 0.80},
	},
	"debt_to_equity": {
		Mean: 1.2, Median: 1.0,
		Percentiles: map[float64]float64{10: 0.3, 25: 0.6, 50: 1.0, 75: 1.7, 90: 2.5},
	},
}
