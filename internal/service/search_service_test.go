package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invest-assist-go/internal/config"
	"invest-assist-go/internal/observability"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedding struct {
	err error
}

func (f fakeEmbedding) CreateEmbedding(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// newFakeES 启动一个模拟 Elasticsearch 搜索接口的服务，并记录收到的查询体。
func newFakeES(t *testing.T, status int, body string, gotQuery *map[string]interface{}) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil && r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(gotQuery)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

const threeHits = `{"hits":{"hits":[
	{"_score":3.2,"_source":{"title":"SIP basics","url":"https://example.com/sip","text_content":"A systematic investment plan lets you invest monthly."}},
	{"_score":2.1,"_source":{"title":"KYC guide","url":"https://example.com/kyc","text_content":"KYC is mandatory."}},
	{"_score":1.0,"_source":{"title":"Fees","url":"https://example.com/fees","text_content":"No account opening fee."}}
]}}`

func TestSearch_ParsesAndTruncates(t *testing.T) {
	var query map[string]interface{}
	client := newFakeES(t, http.StatusOK, threeHits, &query)
	svc := NewSearchService(client, nil, "assist_knowledge", config.SearchConfig{TimeoutSeconds: 2, SnippetLength: 10}, nil)

	results := svc.Search(context.Background(), "what is a sip", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "SIP basics", results[0].Title)
	assert.Equal(t, "https://example.com/sip", results[0].URL)
	assert.Equal(t, "A systemat…", results[0].Snippet)
	assert.Equal(t, 3.2, results[0].Score)
	assert.Equal(t, "KYC is man…", results[1].Snippet)

	assert.NotContains(t, query, "knn")
	assert.Contains(t, query, "query")
}

func TestSearch_AddsKnnWhenEmbeddingAvailable(t *testing.T) {
	var query map[string]interface{}
	client := newFakeES(t, http.StatusOK, threeHits, &query)
	svc := NewSearchService(client, fakeEmbedding{}, "assist_knowledge", config.SearchConfig{}, nil)

	results := svc.Search(context.Background(), "sip", 3)
	require.Len(t, results, 3)
	assert.Contains(t, query, "knn")
}

func TestSearch_EmbeddingFailureFallsBackToKeywords(t *testing.T) {
	var query map[string]interface{}
	client := newFakeES(t, http.StatusOK, threeHits, &query)
	svc := NewSearchService(client, fakeEmbedding{err: errors.New("quota")}, "assist_knowledge", config.SearchConfig{}, nil)

	results := svc.Search(context.Background(), "sip", 3)
	require.Len(t, results, 3)
	assert.NotContains(t, query, "knn")
}

func TestSearch_FailureReturnsEmptyAndCounts(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	client := newFakeES(t, http.StatusInternalServerError, `{"error":"boom"}`, nil)
	svc := NewSearchService(client, nil, "assist_knowledge", config.SearchConfig{}, metrics)
	results := svc.Search(context.Background(), "sip", 3)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	malformed := newFakeES(t, http.StatusOK, `not json`, nil)
	svc = NewSearchService(malformed, nil, "assist_knowledge", config.SearchConfig{}, metrics)
	assert.Empty(t, svc.Search(context.Background(), "sip", 3))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SearchFailures))
}

func TestSearch_TimeoutIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}, DisableRetry: true})
	require.NoError(t, err)

	svc := NewSearchService(client, nil, "assist_knowledge", config.SearchConfig{TimeoutSeconds: 1}, nil)
	start := time.Now()
	assert.Empty(t, svc.Search(context.Background(), "sip", 3))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestNoopSearchService(t *testing.T) {
	assert.Empty(t, NewNoopSearchService().Search(context.Background(), "anything", 3))
	assert.Empty(t, NewSearchService(nil, nil, "", config.SearchConfig{}, nil).Search(context.Background(), "  ", 3))
}
