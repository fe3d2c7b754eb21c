package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"invest-assist-go/internal/config"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/observability"
	"invest-assist-go/pkg/embedding"
	"invest-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// SearchService 检索与查询相关的参考资料。
// Search 从不向调用方返回错误：传输或解析失败时返回空结果，由调用方继续走无增强的流程。
type SearchService interface {
	Search(ctx context.Context, query string, topK int) []model.SearchResult
}

type noopSearchService struct{}

// NewNoopSearchService 返回一个总是没有结果的 SearchService，用于关闭检索增强的部署。
func NewNoopSearchService() SearchService {
	return noopSearchService{}
}

func (noopSearchService) Search(context.Context, string, int) []model.SearchResult {
	return []model.SearchResult{}
}

type esSearchService struct {
	esClient        *elasticsearch.Client
	embeddingClient embedding.Client
	indexName       string
	timeout         time.Duration
	snippetLength   int
	metrics         *observability.Metrics
}

// NewSearchService 创建基于 Elasticsearch 的 SearchService。
// embeddingClient 可为 nil，此时只做 BM25 检索。
func NewSearchService(esClient *elasticsearch.Client, embeddingClient embedding.Client, indexName string, cfg config.SearchConfig, metrics *observability.Metrics) SearchService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &esSearchService{
		esClient:        esClient,
		embeddingClient: embeddingClient,
		indexName:       indexName,
		timeout:         timeout,
		snippetLength:   cfg.SnippetLength,
		metrics:         metrics,
	}
}

// Search 执行 BM25（可选叠加 kNN）检索，结果截断为 topK。
func (s *esSearchService) Search(ctx context.Context, query string, topK int) []model.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []model.SearchResult{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	results, err := s.search(ctx, query, topK)
	s.metrics.ObserveUpstream("search", start, err)
	if err != nil {
		log.Warnw("检索失败，跳过增强", "query_len", len(query), "error", err)
		s.metrics.RecordSearchFailure()
		return []model.SearchResult{}
	}
	log.Debugf("[SearchService] 检索完成, 命中 %d 条", len(results))
	return results
}

func (s *esSearchService) search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "text_content"},
			},
		},
		"_source": []string{"title", "url", "text_content"},
		"size":    topK,
	}
	if s.embeddingClient != nil {
		// 向量化失败时退化为纯 BM25
		if vector, err := s.embeddingClient.CreateEmbedding(ctx, query); err == nil {
			esQuery["knn"] = map[string]interface{}{
				"field":          "vector",
				"query_vector":   vector,
				"k":              topK,
				"num_candidates": topK * 10,
			}
		} else {
			log.Warnw("查询向量化失败，仅使用关键词检索", "error", err)
		}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("elasticsearch returned an error: %s, body: %s", res.Status(), string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Title       string `json:"title"`
					URL         string `json:"url"`
					TextContent string `json:"text_content"`
				} `json:"_source"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SearchResult, 0, topK)
	for _, hit := range esResponse.Hits.Hits {
		if len(results) == topK {
			break
		}
		results = append(results, model.SearchResult{
			Title:   hit.Source.Title,
			URL:     hit.Source.URL,
			Snippet: truncateRunes(hit.Source.TextContent, s.snippetLength),
			Score:   hit.Score,
		})
	}
	return results, nil
}

// truncateRunes 按字符截断，limit <= 0 表示不截断。
func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
