package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// AnalysisRecord 持久化的分析结果
type AnalysisRecord struct {
	ID           int             `json:"id"`
	DocumentID   string          `json:"document_id"`
	AnalysisType string          `json:"analysis_type"`
	Result       json.RawMessage `json:"result"`
	Confidence   float64         `json:"confidence"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AnalysisRepo 分析历史仓库
type AnalysisRepo struct {
	data *Data
	log  *log.Helper
}

// NewAnalysisRepo 创建分析历史仓库
func NewAnalysisRepo(data *Data, logger log.Logger) *AnalysisRepo {
	return &AnalysisRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Save 记录一次分析结果，result 须可 JSON 序列化
func (r *AnalysisRepo) Save(ctx context.Context, documentID, analysisType string, result any, confidence float64) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}

	_, err = r.data.db.ExecContext(ctx, `
		INSERT INTO analysis_results (document_id, analysis_type, result, confidence)
		VALUES ($1, $2, $3, $4)`,
		documentID, analysisType, payload, confidence)
	if err != nil {
		return fmt.Errorf("insert analysis result: %w", err)
	}
	return nil
}

// List 按文档查询历史分析，analysisType 为空时不过滤
func (r *AnalysisRepo) List(ctx context.Context, documentID, analysisType string) ([]AnalysisRecord, error) {
	query := `
		SELECT id, document_id, analysis_type, result, confidence, created_at
		FROM analysis_results
		WHERE document_id = $1`
	args := []any{documentID}
	if analysisType != "" {
		query += ` AND analysis_type = $2`
		args = append(args, analysisType)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.data.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analysis results: %w", err)
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.AnalysisType, &rec.Result, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
