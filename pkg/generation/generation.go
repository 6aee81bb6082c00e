package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/fin_insight/pkg/config"
)

// Generator 答案生成接口，便于在测试中替换真实 LLM
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// chatModel 生成调用所需的最小接口
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Client 基于 eino ChatModel 的生成客户端
type Client struct {
	chatModel chatModel
	limiter   *rate.Limiter
	timeout   time.Duration
	baseDelay time.Duration
}

var _ Generator = (*Client)(nil)

// NewClient 创建生成客户端
func NewClient(cfg *config.Config) (*Client, error) {
	ctx := context.Background()

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	burst := cfg.Concurrency.QPS
	if burst <= 0 {
		burst = 1
	}

	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		chatModel: cm,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		baseDelay: 2 * time.Second,
	}, nil
}

// Generate 执行一次生成。限流错误按指数退避重试，
// 瞬时故障（超时、5xx、连接中断）退避后再试一次，其余错误直接返回。
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	maxRetries := 3
	transientRetried := false
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: systemPrompt},
			{Role: schema.User, Content: userPrompt},
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.chatModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return strings.TrimSpace(resp.Content), nil
		}
		lastErr = err

		if isRateLimited(err) {
			if i < maxRetries {
				time.Sleep(c.baseDelay * time.Duration(1<<i))
				continue
			}
		} else if isTransient(err) && !transientRetried && ctx.Err() == nil {
			transientRetried = true
			time.Sleep(c.baseDelay)
			continue
		}
		return "", fmt.Errorf("generate failed: %w", err)
	}
	return "", fmt.Errorf("generate failed: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

// isTransient 判断是否值得重试的瞬时故障
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"timeout", "timed out", "deadline exceeded", "connection refused",
		"connection reset", "unexpected eof", "500", "502", "503", "504",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
