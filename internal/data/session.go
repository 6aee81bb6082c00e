package data

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// SessionRepo 会话与消息存储
type SessionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSessionRepo 创建会话仓库
func NewSessionRepo(data *Data, logger log.Logger) *SessionRepo {
	return &SessionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Ensure 返回会话 ID。传入为空时新建会话。
func (r *SessionRepo) Ensure(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	_, err := r.data.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id) VALUES ($1)
		ON CONFLICT (session_id) DO NOTHING`, sessionID)
	if err != nil {
		return "", fmt.Errorf("ensure session: %w", err)
	}
	return sessionID, nil
}

// Append 追加一条消息，返回消息 ID
func (r *SessionRepo) Append(ctx context.Context, sessionID, role, content string) (string, error) {
	messageID := uuid.NewString()
	_, err := r.data.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, message_id, role, content)
		VALUES ($1, $2, $3, $4)`,
		sessionID, messageID, role, content)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	return messageID, nil
}

// History 按时间顺序取会话历史，最多 limit 条
func (r *SessionRepo) History(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	// 取最近 limit 条后再正序返回
	rows, err := r.data.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT role, content, id FROM chat_messages
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) t ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
