package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// SnapshotRepo 财务快照仓库。抽取流水线把各报告期的数值字段写入
// financial_snapshots 表，本仓库负责读取与时间序列拼装。
type SnapshotRepo struct {
	data *Data
	log  *log.Helper
}

// NewSnapshotRepo 创建快照仓库
func NewSnapshotRepo(data *Data, logger log.Logger) *SnapshotRepo {
	return &SnapshotRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Save 写入或覆盖某文档某报告期的快照
func (r *SnapshotRepo) Save(ctx context.Context, documentID string, snap model.FinancialSnapshot) error {
	payload, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshal snapshot fields: %w", err)
	}

	_, err = r.data.db.ExecContext(ctx, `
		INSERT INTO financial_snapshots (document_id, period, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, period) DO UPDATE SET fields = EXCLUDED.fields`,
		documentID, snap.Period, payload)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Snapshot 取某文档某报告期的快照，period 为空时取最新一期
func (r *SnapshotRepo) Snapshot(ctx context.Context, documentID, period string) (*model.FinancialSnapshot, error) {
	var row *sql.Row
	if period == "" {
		row = r.data.db.QueryRowContext(ctx, `
			SELECT period, fields FROM financial_snapshots
			WHERE document_id = $1
			ORDER BY period DESC LIMIT 1`, documentID)
	} else {
		row = r.data.db.QueryRowContext(ctx, `
			SELECT period, fields FROM financial_snapshots
			WHERE document_id = $1 AND period = $2`, documentID, period)
	}

	var p string
	var payload []byte
	if err := row.Scan(&p, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("SNAPSHOT_NOT_FOUND",
				fmt.Sprintf("no financial snapshot for document %s", documentID))
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	fields := map[string]float64{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot fields: %w", err)
	}
	return &model.FinancialSnapshot{Period: p, Fields: fields}, nil
}

// Series 取某指标按报告期升序的时间序列，缺该字段的报告期跳过
func (r *SnapshotRepo) Series(ctx context.Context, documentID, metric string) ([]float64, error) {
	rows, err := r.data.db.QueryContext(ctx, `
		SELECT period, fields FROM financial_snapshots
		WHERE document_id = $1
		ORDER BY period ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	type periodValue struct {
		period string
		value  float64
	}
	var values []periodValue
	for rows.Next() {
		var p string
		var payload []byte
		if err := rows.Scan(&p, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		fields := map[string]float64{}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot fields: %w", err)
		}
		if v, ok := fields[metric]; ok {
			values = append(values, periodValue{period: p, value: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.NotFound("SERIES_NOT_FOUND",
			fmt.Sprintf("no %s series for document %s", metric, documentID))
	}

	sort.Slice(values, func(i, j int) bool { return values[i].period < values[j].period })
	series := make([]float64, len(values))
	for i, pv := range values {
		series[i] = pv.value
	}
	return series, nil
}
