package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.RecordRejection("RateLimited")
	m.RecordRejection("RateLimited")
	m.RecordRejection("OriginDenied")
	m.RecordStage("knowledge")
	m.RecordSearchFailure()
	m.ObserveUpstream("llm", time.Now(), nil)
	m.ObserveUpstream("llm", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SecurityRejections.WithLabelValues("RateLimited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecurityRejections.WithLabelValues("OriginDenied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouteStages.WithLabelValues("knowledge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchFailures))
	assert.Equal(t, 2, testutil.CollectAndCount(m.UpstreamDuration))

	// 同一个 registry 上不能重复注册
	assert.Panics(t, func() { NewMetrics(reg) })
	// 独立 registry 互不影响
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRejection("x")
		m.RecordStage("x")
		m.RecordSearchFailure()
		m.ObserveUpstream("x", time.Now(), nil)
	})
}
