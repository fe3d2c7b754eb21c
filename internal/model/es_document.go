package model

// SearchResult 是检索增强返回的一条参考资料，仅在单次请求内使用。
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// KnowledgeChunk 定义了存储在 Elasticsearch 中的知识文档分块。
type KnowledgeChunk struct {
	ChunkKey    string    `json:"chunk_key"` // 唯一标识，docId + chunkId
	DocID       string    `json:"doc_id"`
	ChunkID     int       `json:"chunk_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector,omitempty"`
}
