// Package pipeline 定义了知识文档的索引流程：对象存储 -> 文本提取 -> 切块 -> 向量化 -> 检索索引。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"invest-assist-go/internal/model"
	"invest-assist-go/pkg/embedding"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

// ObjectOpener 读取对象存储中的文档。
type ObjectOpener interface {
	Open(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// TextExtractor 从二进制文档中提取纯文本。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// ChunkIndexer 写入检索索引。
type ChunkIndexer interface {
	DeleteDocument(ctx context.Context, docID string) error
	IndexChunk(ctx context.Context, chunk model.KnowledgeChunk) error
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	objects         ObjectOpener
	extractor       TextExtractor
	embeddingClient embedding.Client
	indexer         ChunkIndexer
	chunkSize       int
	chunkOverlap    int
}

// NewProcessor 创建一个新的 Processor 实例。embeddingClient 可为 nil，此时分块不带向量。
func NewProcessor(objects ObjectOpener, extractor TextExtractor, embeddingClient embedding.Client, indexer ChunkIndexer) *Processor {
	return &Processor{
		objects:         objects,
		extractor:       extractor,
		embeddingClient: embeddingClient,
		indexer:         indexer,
		chunkSize:       defaultChunkSize,
		chunkOverlap:    defaultChunkOverlap,
	}
}

// Process 是文档处理的主函数。重复处理同一文档会先删除旧分块，结果是幂等的。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIndexTask) error {
	log.Infof("[Processor] 开始处理文档, DocID: %s, Object: %s", task.DocID, task.ObjectName)

	// 1. 从对象存储读取文档
	object, err := p.objects.Open(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("读取文档失败: %w", err)
	}
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	object.Close()
	if err != nil {
		return fmt.Errorf("读取文档内容失败: %w", err)
	}
	if size == 0 {
		return errors.New("文件内容为空")
	}
	log.Infof("[Processor] 步骤1: 文档读取成功, 大小: %d 字节", size)

	// 2. 提取文本
	textContent, err := p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), path.Base(task.ObjectName))
	if err != nil {
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	textContent = strings.TrimSpace(textContent)
	if textContent == "" {
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块
	chunks := splitText(textContent, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		return errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 4. 清理旧分块后逐块向量化并索引
	if err := p.indexer.DeleteDocument(ctx, task.DocID); err != nil {
		log.Warnf("[Processor] 清理旧分块失败 (doc_id=%s): %v", task.DocID, err)
	}
	title := task.Title
	if title == "" {
		title = path.Base(task.ObjectName)
	}
	for i, text := range chunks {
		chunk := model.KnowledgeChunk{
			ChunkKey:    fmt.Sprintf("%s_%d", task.DocID, i),
			DocID:       task.DocID,
			ChunkID:     i,
			Title:       title,
			URL:         task.URL,
			TextContent: text,
		}
		if p.embeddingClient != nil {
			vector, err := p.embeddingClient.CreateEmbedding(ctx, text)
			if err != nil {
				return fmt.Errorf("块 %d 向量化失败: %w", i, err)
			}
			chunk.Vector = vector
		}
		if err := p.indexer.IndexChunk(ctx, chunk); err != nil {
			return fmt.Errorf("索引块 %d 到 Elasticsearch 失败: %w", i, err)
		}
	}

	log.Infof("[Processor] 文档处理成功完成, DocID: %s, 分块: %d", task.DocID, len(chunks))
	return nil
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize int, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	step := chunkSize - chunkOverlap
	if step <= 0 {
		// 重叠无效时退化为不重叠切分
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
