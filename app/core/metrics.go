package core

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quka-ai/knowledge-sync/pkg/metrics"
)

type Metrics struct {
	apiResponseTime *prometheus.HistogramVec
	apiErrorCounter *prometheus.CounterVec
	embeddingTime   *prometheus.HistogramVec
	jobCounter      *prometheus.CounterVec
	rollbackCounter *prometheus.CounterVec
	searchTime      *prometheus.HistogramVec
}

func NewMetrics(ns, system string) *Metrics {
	// setup metric
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	m := &Metrics{
		apiResponseTime: metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter: metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		embeddingTime:   metrics.NewHistogramVec("embedding_time", []string{"status"}),
		jobCounter:      metrics.NewCounterVec("embedding_job", []string{"status"}),
		rollbackCounter: metrics.NewCounterVec("rollback", []string{"scope", "result"}),
		searchTime:      metrics.NewHistogramVec("search_time", []string{"status"}),
	}

	return m
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

func (m *Metrics) ObserveEmbedding(status string, d time.Duration) {
	m.embeddingTime.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) JobFinished(status string) {
	m.jobCounter.WithLabelValues(status).Inc()
}

func (m *Metrics) Rollback(scope string, ok bool) {
	result := "ok"
	if !ok {
		result = "partial"
	}
	m.rollbackCounter.WithLabelValues(scope, result).Inc()
}

func (m *Metrics) ObserveSearch(status string, d time.Duration) {
	m.searchTime.WithLabelValues(status).Observe(d.Seconds())
}
