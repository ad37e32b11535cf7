package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 语气分析相关指标
var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztone_analyses_total",
		Help: "Tone analyses by primary tone and vector source",
	}, []string{"tone", "source"})

	ResolverPaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztone_resolver_path_total",
		Help: "Vector resolver outcomes by path",
	}, []string{"path"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ztone_analysis_duration_seconds",
		Help:    "End-to-end tone analysis latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
	})
)

// 依赖调用指标
var (
	EmbeddingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ztone_embedding_duration_seconds",
		Help:    "Embedding provider call latency",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 3},
	}, []string{"model", "outcome"})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ztone_store_duration_seconds",
		Help:    "Store operation latency",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 3},
	}, []string{"op", "outcome"})
)

// 后台持久化队列指标
var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ztone_queue_depth",
		Help: "Jobs waiting in the persistence queue",
	})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ztone_queue_dropped_total",
		Help: "Persistence jobs dropped because the queue was full or closed",
	})

	QueueFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztone_queue_failed_total",
		Help: "Persistence jobs that returned an error",
	}, []string{"job"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztone_requests_total",
		Help: "Inbound requests by transport",
	}, []string{"transport"})
)

// Outcome maps an error to the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
