// Package metrics 提供文档问答服务的 Prometheus 业务指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kart-io/docqa/pkg/errors"
)

const namespace = "docqa"

// Metrics 业务指标集合。nil 接收者上的方法均为空操作。
type Metrics struct {
	ingestTotal     *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
	chunksIndexed   prometheus.Counter
	queriesTotal    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	retrievalHits   prometheus.Histogram
	orphanHits      prometheus.Counter
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	orphansTotal    *prometheus.CounterVec
	orphanQueueLen  prometheus.Gauge
}

// New 创建并注册指标。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of document ingestions by result.",
		}, []string{"result"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Document ingestion latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks indexed.",
		}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries by result.",
		}, []string{"result"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query answering latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		retrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_hits",
			Help:      "Number of chunks resolved per retrieval.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		orphanHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_orphan_hits_total",
			Help:      "Search hits without a metadata row.",
		}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls by operation and result.",
		}, []string{"operation", "result"}),
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		orphansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_vectors_total",
			Help:      "Orphan vectors by outcome (queued, purged, failed, lost).",
		}, []string{"outcome"}),
		orphanQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphan_queue_length",
			Help:      "Entries waiting in the orphan queue.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ingestTotal, m.ingestDuration, m.chunksIndexed,
			m.queriesTotal, m.queryDuration, m.retrievalHits, m.orphanHits,
			m.llmCallsTotal, m.llmCallDuration,
			m.orphansTotal, m.orphanQueueLen,
		)
	}
	return m
}

// Result classifies an error into a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.IsCode(err, errors.ErrPartialIngestion.Code):
		return "partial"
	case errors.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

// RecordIngest 记录文档入库。
func (m *Metrics) RecordIngest(chunks int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(Result(err)).Inc()
	m.ingestDuration.Observe(d.Seconds())
	if err == nil {
		m.chunksIndexed.Add(float64(chunks))
	}
}

// RecordQuery 记录查询。
func (m *Metrics) RecordQuery(cacheHit bool, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := Result(err)
	if err == nil && cacheHit {
		result = "cache_hit"
	}
	m.queriesTotal.WithLabelValues(result).Inc()
	m.queryDuration.Observe(d.Seconds())
}

// RecordRetrieval 记录检索命中与孤立命中。
func (m *Metrics) RecordRetrieval(hits, orphans int) {
	if m == nil {
		return
	}
	m.retrievalHits.Observe(float64(hits))
	m.orphanHits.Add(float64(orphans))
}

// RecordLLMCall 记录 LLM 调用。
func (m *Metrics) RecordLLMCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(operation, Result(err)).Inc()
	m.llmCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordOrphans 记录孤立向量的处理结果。
func (m *Metrics) RecordOrphans(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.orphansTotal.WithLabelValues(outcome).Add(float64(n))
}

// SetOrphanQueueLength 更新队列长度。
func (m *Metrics) SetOrphanQueueLength(n int64) {
	if m == nil {
		return
	}
	m.orphanQueueLen.Set(float64(n))
}
