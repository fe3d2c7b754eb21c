// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invest-assist-go/internal/config"
	"invest-assist-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion 表示模型返回了空内容。
var ErrEmptyCompletion = errors.New("model returned empty completion")

// 角色常量，与 OpenAI 兼容接口一致。
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口，返回完整回复文本。maxTokens <= 0 时使用配置值。
	Complete(ctx context.Context, messages []Message, maxTokens int) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient 基于 OpenAI 兼容接口创建客户端，BaseURL 可指向任意兼容服务。
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if c.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(c.cfg.Temperature),
	}
	if maxTokens > 0 {
		req.MaxCompletionTokens = maxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	log.Debugf("[LLMClient] 调用模型, model: %s, messages: %d, max_tokens: %d", c.cfg.Model, len(messages), maxTokens)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	log.Debugf("[LLMClient] 模型返回, finish_reason: %s, len: %d", resp.Choices[0].FinishReason, len(content))
	return content, nil
}
