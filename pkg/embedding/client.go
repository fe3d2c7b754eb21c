// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"invest-assist-go/internal/config"
	"invest-assist-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *openai.Client
}

// NewClient creates a new embedding client based on the provider in the config.
// 未配置模型时返回 nil，调用方据此退化为纯关键词检索。
func NewClient(cfg config.EmbeddingConfig) Client {
	if cfg.Model == "" || cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api")
	}
	return resp.Data[0].Embedding, nil
}
