package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/iWorld-y/fin_insight/pkg/index"
	"github.com/iWorld-y/fin_insight/pkg/logger"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Engine 基于余弦相似度的检索引擎
type Engine struct {
	index *index.Index
}

// NewEngine 创建检索引擎
func NewEngine(ix *index.Index) *Engine {
	return &Engine{index: ix}
}

// Retrieve 在 scope（单文档或全库）内检索与查询向量最相近的块。
// 只返回相关度 ≥ minScore 的块，最多 topK 条，不用低相关块凑数；
// scope 内没有块时返回空结果而非错误，由上游按降级语义处理。
// 排序：相关度降序，同分按 ordinal 升序、再按 document_id 升序，保证确定性。
func (e *Engine) Retrieve(ctx context.Context, queryEmbedding []float64, scope string, topK int, minScore float64) (*model.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := e.index.Snapshot(scope)
	if len(chunks) == 0 {
		logger.Log.Debugf("检索范围 [%s] 内没有任何块，返回空结果", scope)
		return &model.RetrievalResult{}, nil
	}

	hits := make([]model.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score := Cosine(queryEmbedding, c.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, model.ScoredChunk{
			Chunk:      c,
			Score:      score,
			DocumentID: c.DocumentID,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.Ordinal != hits[j].Chunk.Ordinal {
			return hits[i].Chunk.Ordinal < hits[j].Chunk.Ordinal
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	return &model.RetrievalResult{Hits: hits}, nil
}

// Cosine 余弦相似度，负值截断为 0 使得分值落在 [0,1]
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
