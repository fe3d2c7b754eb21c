package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"invest-assist-go/internal/model"
	"invest-assist-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects map[string]string

func (f fakeObjects) Open(_ context.Context, name string) (io.ReadCloser, error) {
	body, ok := f[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type upperExtractor struct{ gotName string }

func (u *upperExtractor) ExtractText(_ context.Context, r io.Reader, name string) (string, error) {
	u.gotName = name
	b, err := io.ReadAll(r)
	return strings.ToUpper(string(b)), err
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1, 2}, f.err
}

type recordingIndexer struct {
	deleted []string
	chunks  []model.KnowledgeChunk
}

func (r *recordingIndexer) DeleteDocument(_ context.Context, docID string) error {
	r.deleted = append(r.deleted, docID)
	return nil
}

func (r *recordingIndexer) IndexChunk(_ context.Context, chunk model.KnowledgeChunk) error {
	r.chunks = append(r.chunks, chunk)
	return nil
}

func TestProcess_IndexesChunks(t *testing.T) {
	objects := fakeObjects{"guides/kyc.txt": strings.Repeat("a", 2500)}
	extractor := &upperExtractor{}
	indexer := &recordingIndexer{}
	p := NewProcessor(objects, extractor, fakeEmbedder{}, indexer)

	err := p.Process(context.Background(), tasks.DocumentIndexTask{DocID: "kyc", ObjectName: "guides/kyc.txt", URL: "https://example.com/kyc"})
	require.NoError(t, err)

	assert.Equal(t, "kyc.txt", extractor.gotName)
	assert.Equal(t, []string{"kyc"}, indexer.deleted)
	require.Len(t, indexer.chunks, 3)
	assert.Equal(t, "kyc_0", indexer.chunks[0].ChunkKey)
	assert.Equal(t, "kyc.txt", indexer.chunks[0].Title)
	assert.Equal(t, "https://example.com/kyc", indexer.chunks[2].URL)
	assert.Equal(t, []float32{1, 2}, indexer.chunks[1].Vector)
	assert.Equal(t, strings.Repeat("A", 1000), indexer.chunks[0].TextContent)
}

func TestProcess_Failures(t *testing.T) {
	ctx := context.Background()

	p := NewProcessor(fakeObjects{}, &upperExtractor{}, nil, &recordingIndexer{})
	assert.Error(t, p.Process(ctx, tasks.DocumentIndexTask{DocID: "x", ObjectName: "missing"}))

	p = NewProcessor(fakeObjects{"empty": ""}, &upperExtractor{}, nil, &recordingIndexer{})
	assert.Error(t, p.Process(ctx, tasks.DocumentIndexTask{DocID: "x", ObjectName: "empty"}))

	p = NewProcessor(fakeObjects{"blank": "   "}, &upperExtractor{}, nil, &recordingIndexer{})
	assert.Error(t, p.Process(ctx, tasks.DocumentIndexTask{DocID: "x", ObjectName: "blank"}))

	p = NewProcessor(fakeObjects{"doc": "text"}, &upperExtractor{}, fakeEmbedder{err: errors.New("quota")}, &recordingIndexer{})
	assert.Error(t, p.Process(ctx, tasks.DocumentIndexTask{DocID: "x", ObjectName: "doc"}))
}

func TestProcess_WithoutEmbedding(t *testing.T) {
	indexer := &recordingIndexer{}
	p := NewProcessor(fakeObjects{"doc": "short text"}, &upperExtractor{}, nil, indexer)
	require.NoError(t, p.Process(context.Background(), tasks.DocumentIndexTask{DocID: "d", ObjectName: "doc", Title: "Guide"}))
	require.Len(t, indexer.chunks, 1)
	assert.Nil(t, indexer.chunks[0].Vector)
	assert.Equal(t, "Guide", indexer.chunks[0].Title)
}

func TestSplitText(t *testing.T) {
	assert.Nil(t, splitText("", 10, 2))

	chunks := splitText("abcdefghij", 4, 1)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)

	// 重叠不小于块大小时不重叠
	assert.Equal(t, []string{"abc", "def", "g"}, splitText("abcdefg", 3, 5))

	// 按字符而不是字节切分
	assert.Equal(t, []string{"你好", "世界"}, splitText("你好世界", 2, 0))
}
