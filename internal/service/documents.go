package service

import (
	"fmt"
	"net/http"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/mux"

	"github.com/iWorld-y/fin_insight/internal/data"
	"github.com/iWorld-y/fin_insight/pkg/embedding"
	"github.com/iWorld-y/fin_insight/pkg/index"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// DocumentService 文档数据装载接口。解析与切分由上游流水线完成，
// 这里接收已切好的片段与已抽取的财务字段。
type DocumentService struct {
	index     *index.Index
	embedder  embedding.Embedder
	snapshots *data.SnapshotRepo
	log       *log.Helper
}

// NewDocumentService 创建文档服务
func NewDocumentService(ix *index.Index, embedder embedding.Embedder, snapshots *data.SnapshotRepo, logger log.Logger) *DocumentService {
	return &DocumentService{
		index:     ix,
		embedder:  embedder,
		snapshots: snapshots,
		log:       log.NewHelper(logger),
	}
}

type chunkPayload struct {
	ID            string             `json:"id"`
	Ordinal       int                `json:"ordinal"`
	Text          string             `json:"text"`
	Embedding     []float64          `json:"embedding,omitempty"`
	NumericFields map[string]float64 `json:"numeric_fields,omitempty"`
}

type putChunksReq struct {
	Chunks []chunkPayload `json:"chunks"`
}

// HandlePutChunks PUT /documents/{document_id}/chunks
// 整体替换文档的片段集合。缺 embedding 的片段现场向量化。
func (s *DocumentService) HandlePutChunks(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["document_id"]
	if documentID == "" {
		badRequest(w, "document_id is required in path")
		return
	}

	var req putChunksReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Chunks) == 0 {
		badRequest(w, "chunks is required")
		return
	}

	chunks := make([]model.Chunk, 0, len(req.Chunks))
	for i, c := range req.Chunks {
		emb := c.Embedding
		if len(emb) == 0 {
			vec, err := s.embedder.Embed(r.Context(), c.Text)
			if err != nil {
				writeError(w, fmt.Errorf("embed chunk %d: %w", i, err))
				return
			}
			emb = vec
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", documentID, c.Ordinal)
		}
		chunks = append(chunks, model.Chunk{
			ID:            id,
			DocumentID:    documentID,
			Ordinal:       c.Ordinal,
			Text:          c.Text,
			Embedding:     emb,
			NumericFields: c.NumericFields,
		})
	}

	s.index.Put(documentID, chunks)
	s.log.WithContext(r.Context()).Infof("indexed %d chunks for document %s", len(chunks), documentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"indexed":     len(chunks),
	})
}

type putSnapshotsReq struct {
	Snapshots []model.FinancialSnapshot `json:"snapshots"`
}

// HandlePutSnapshots PUT /documents/{document_id}/snapshots
func (s *DocumentService) HandlePutSnapshots(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["document_id"]
	if documentID == "" {
		badRequest(w, "document_id is required in path")
		return
	}

	var req putSnapshotsReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Snapshots) == 0 {
		badRequest(w, "snapshots is required")
		return
	}

	for _, snap := range req.Snapshots {
		if snap.Period == "" {
			badRequest(w, "snapshot period is required")
			return
		}
		if err := s.snapshots.Save(r.Context(), documentID, snap); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"saved":       len(req.Snapshots),
	})
}

// HandleDeleteDocument DELETE /documents/{document_id}
func (s *DocumentService) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["document_id"]
	if documentID == "" {
		badRequest(w, "document_id is required in path")
		return
	}

	s.index.Delete(documentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"deleted":     true,
	})
}
