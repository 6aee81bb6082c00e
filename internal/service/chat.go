package service

import (
	"net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/fin_insight/internal/data"
	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/engine"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// ChatService 问答接口
type ChatService struct {
	cfg      *config.Config
	engine   *engine.Engine
	sessions *data.SessionRepo
	log      *log.Helper
}

// NewChatService 创建问答服务
func NewChatService(cfg *config.Config, eng *engine.Engine, sessions *data.SessionRepo, logger log.Logger) *ChatService {
	return &ChatService{
		cfg:      cfg,
		engine:   eng,
		sessions: sessions,
		log:      log.NewHelper(logger),
	}
}

type chatQueryReq struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id"`
	DocumentID string `json:"document_id"`
	Context    string `json:"context"`
}

type chatQueryResp struct {
	Response        string                 `json:"response"`
	SessionID       string                 `json:"session_id"`
	MessageID       string                 `json:"message_id"`
	ConfidenceScore float64                `json:"confidence_score"`
	LowConfidence   bool                   `json:"low_confidence"`
	Citations       []model.Citation       `json:"citations"`
	Computations    []model.ComputationRef `json:"computations,omitempty"`
	Notes           []string               `json:"notes,omitempty"`
	ProcessingTime  float64                `json:"processing_time"`
	ModelUsed       string                 `json:"model_used"`
}

// HandleQuery POST /chat/query
func (s *ChatService) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req chatQueryReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		badRequest(w, "query is required")
		return
	}

	ctx := r.Context()
	sessionID, err := s.sessions.Ensure(ctx, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := s.sessions.History(ctx, sessionID, 20)
	if err != nil {
		s.log.WithContext(ctx).Warnf("load history failed: %v", err)
	}

	start := time.Now()
	result, err := s.engine.Answer(ctx, &engine.QueryRequest{
		Query:      req.Query,
		DocumentID: req.DocumentID,
		Context:    req.Context,
		History:    history,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.sessions.Append(ctx, sessionID, "user", req.Query); err != nil {
		s.log.WithContext(ctx).Warnf("persist user message failed: %v", err)
	}
	messageID, err := s.sessions.Append(ctx, sessionID, "assistant", result.Answer.Text)
	if err != nil {
		s.log.WithContext(ctx).Warnf("persist assistant message failed: %v", err)
	}

	citations := result.Answer.Citations
	if citations == nil {
		citations = []model.Citation{}
	}

	writeJSON(w, http.StatusOK, chatQueryResp{
		Response:        result.Answer.Text,
		SessionID:       sessionID,
		MessageID:       messageID,
		ConfidenceScore: result.Answer.Confidence,
		LowConfidence:   result.Answer.LowConfidence,
		Citations:       citations,
		Computations:    result.Answer.Computations,
		Notes:           result.Answer.Notes,
		ProcessingTime:  time.Since(start).Seconds(),
		ModelUsed:       s.cfg.LLM.Model,
	})
}
