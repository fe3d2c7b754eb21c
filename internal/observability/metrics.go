// Package observability 定义服务的 Prometheus 指标。
//
// 指标通过 /metrics 暴露：
//   - security_rejections_total{kind}：请求防护拒绝次数，按错误分类
//   - route_stage_total{stage}：路由级联各阶段命中次数
//   - upstream_duration_seconds{upstream,status}：外部调用耗时
//   - search_failures_total：检索失败（已降级）次数
//
// 所有方法对 nil *Metrics 安全，便于测试中省略指标。
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "assist"

// Metrics 汇总所有指标。启动时通过 NewMetrics 创建一次。
type Metrics struct {
	SecurityRejections *prometheus.CounterVec
	RouteStages        *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	SearchFailures     prometheus.Counter
}

// NewMetrics 在给定的 Registerer 上注册指标。
// 生产环境传 prometheus.DefaultRegisterer，测试传独立的 prometheus.NewRegistry()。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SecurityRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "security_rejections_total",
				Help:      "Requests rejected by the security gate, by error kind.",
			},
			[]string{"kind"},
		),
		RouteStages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "route_stage_total",
				Help:      "Messages answered per routing stage.",
			},
			[]string{"stage"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_duration_seconds",
				Help:      "Latency of calls to external services.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"upstream", "status"},
		),
		SearchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "search_failures_total",
				Help:      "Search calls that failed and were skipped.",
			},
		),
	}
}

// RecordRejection 记录一次请求防护拒绝。
func (m *Metrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.SecurityRejections.WithLabelValues(kind).Inc()
}

// RecordStage 记录一次路由阶段命中。
func (m *Metrics) RecordStage(stage string) {
	if m == nil {
		return
	}
	m.RouteStages.WithLabelValues(stage).Inc()
}

// ObserveUpstream 记录一次外部调用耗时。
func (m *Metrics) ObserveUpstream(upstream string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamDuration.WithLabelValues(upstream, status).Observe(time.Since(start).Seconds())
}

// RecordSearchFailure 记录一次检索降级。
func (m *Metrics) RecordSearchFailure() {
	if m == nil {
		return
	}
	m.SearchFailures.Inc()
}
