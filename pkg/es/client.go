// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"invest-assist-go/internal/config"
	"invest-assist-go/internal/model"
	"invest-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewClient 创建 Elasticsearch 客户端，不发起网络请求。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	addresses := make([]string, 0)
	for _, addr := range strings.Split(esCfg.Addresses, ",") {
		if a := strings.TrimSpace(addr); a != "" {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		return nil, errors.New("elasticsearch addresses not configured")
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// InitES 初始化 Elasticsearch 客户端，并确保知识索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) (*elasticsearch.Client, error) {
	client, err := NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	if err := createIndexIfNotExists(client, esCfg.IndexName, dims); err != nil {
		return nil, err
	}
	return client, nil
}

// indexMapping 返回知识分块索引的映射。文本字段使用英文分词器，向量使用 cosine 相似度。
func indexMapping(dims int) string {
	if dims <= 0 {
		dims = 1024
	}
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_key": { "type": "keyword" },
				"doc_id": { "type": "keyword" },
				"chunk_id": { "type": "integer" },
				"title": { "type": "text", "analyzer": "english" },
				"url": { "type": "keyword" },
				"text_content": { "type": "text", "analyzer": "english" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(indexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexChunk 将单个知识分块索引到 Elasticsearch，以 ChunkKey 作为文档 ID，重复索引会覆盖。
func IndexChunk(ctx context.Context, client *elasticsearch.Client, indexName string, chunk model.KnowledgeChunk) error {
	docBytes, err := json.Marshal(chunk)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: chunk.ChunkKey,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// DeleteByDocID 删除某个文档的全部分块，重新索引前调用。
func DeleteByDocID(ctx context.Context, client *elasticsearch.Client, indexName, docID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"doc_id":%q}}}`, docID)
	res, err := client.DeleteByQuery(
		[]string{indexName},
		strings.NewReader(body),
		client.DeleteByQuery.WithContext(ctx),
		client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query returned error: %s", res.String())
	}
	return nil
}

// Indexer 把知识分块写入固定的索引。
type Indexer struct {
	client    *elasticsearch.Client
	indexName string
}

// NewIndexer 创建一个 Indexer。
func NewIndexer(client *elasticsearch.Client, indexName string) *Indexer {
	return &Indexer{client: client, indexName: indexName}
}

// IndexChunk 索引单个分块。
func (i *Indexer) IndexChunk(ctx context.Context, chunk model.KnowledgeChunk) error {
	return IndexChunk(ctx, i.client, i.indexName, chunk)
}

// DeleteDocument 删除文档的全部分块。
func (i *Indexer) DeleteDocument(ctx context.Context, docID string) error {
	return DeleteByDocID(ctx, i.client, i.indexName, docID)
}
