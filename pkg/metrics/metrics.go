// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leaseiq"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	analyses     *prometheus.CounterVec
	lockedScore  *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	ocrDuration  *prometheus.HistogramVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_analyses_total",
			Help:      "Contract analyses by outcome.",
		}, []string{"outcome"}),
		lockedScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "locked_fairness_score",
			Help:      "Distribution of locked fairness scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"strategy"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ocrDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_duration_seconds",
			Help:      "OCR latency by provider and outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"provider", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.analyses, m.lockedScore, m.llmCalls, m.ocrDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveAnalysis records a finished analysis; the score is recorded only on success.
func (m *Metrics) ObserveAnalysis(strategy string, score int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.analyses.WithLabelValues("failed").Inc()
		return
	}
	m.analyses.WithLabelValues("completed").Inc()
	m.lockedScore.WithLabelValues(strategy).Observe(float64(score))
}

// ObserveLLM records one LLM call.
func (m *Metrics) ObserveLLM(operation string, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveOCR records one OCR run.
func (m *Metrics) ObserveOCR(provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ocrDuration.WithLabelValues(provider, outcome(err)).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
