// Package metrics 定义服务的 Prometheus 指标。
// 指标在包初始化时注册到默认 Registry，通过 /metrics 暴露。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recserve"

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total recommendation requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"endpoint"},
	)

	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Model scoring plus ranking latency on cache miss",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits by request kind",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses by request kind",
		},
		[]string{"kind"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Result cache store failures absorbed as misses",
		},
		[]string{"op"}, // get / set / decode / breaker
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Requests answered by the popularity fallback",
		},
		[]string{"reason"},
	)

	StaleItemsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_items_dropped_total",
			Help:      "Ranked item ids missing from the catalog and dropped while formatting",
		},
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_reloads_total",
			Help:      "Model snapshot loads by outcome",
		},
		[]string{"status"},
	)

	ModelInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_info",
			Help:      "Currently served model snapshot (value is always 1)",
		},
		[]string{"version", "model_type"},
	)

	ModelItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_items",
			Help:      "Catalog size of the served snapshot",
		},
	)
)

// ObserveRequest 记录一次请求
func ObserveRequest(endpoint, status string, d time.Duration) {
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetModel 切换 model_info 到新快照
func SetModel(version, modelType string, items int) {
	ModelInfo.Reset()
	ModelInfo.WithLabelValues(version, modelType).Set(1)
	ModelItems.Set(float64(items))
}
