// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Metrics holds the Prometheus metrics for one Kestrel process. Each
// instance owns its registry, so tests can build as many as they like.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	// Underwriting metrics
	DecisionsTotal     *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	IncomeAnalyses     *prometheus.CounterVec
	ScenarioSelections *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	RateLimited  prometheus.Counter

	// Worker metrics
	WorkerMessages *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kestrel"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		namespace: namespace,

		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "underwriting",
			Name:      "decisions_total",
			Help:      "Total number of scored applications by decision",
		}, []string{"decision"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "underwriting",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to score an application including policy rules",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		IncomeAnalyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "underwriting",
			Name:      "income_analyses_total",
			Help:      "Total number of income stability analyses by recommendation",
		}, []string{"recommendation"}),
		ScenarioSelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "underwriting",
			Name:      "scenario_selections_total",
			Help:      "Total number of canned provider scenario lookups by kind",
		}, []string{"kind"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the tenant rate limit",
		}),

		WorkerMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Total number of submitted applications processed by outcome",
		}, []string{"outcome"}),
	}
}

// RegisterCache exposes the local cache's size and hit counters, read from
// stats at scrape time.
func (m *Metrics) RegisterCache(stats func() cache.Stats) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: m.namespace, Subsystem: "cache", Name: name, Help: help}
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("entries", "Values held in the local cache")),
			func() float64 { return float64(stats().Size) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("hits_total", "Local cache hits")),
			func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("misses_total", "Local cache misses")),
			func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("evictions_total", "Local cache capacity evictions")),
			func() float64 { return float64(stats().Evictions) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision records one scored application.
func (m *Metrics) ObserveDecision(decision domain.Decision, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

// ObserveIncomeAnalysis records one income analysis.
func (m *Metrics) ObserveIncomeAnalysis(recommendation string) {
	m.IncomeAnalyses.WithLabelValues(recommendation).Inc()
}

// ObserveScenario records one canned scenario lookup.
func (m *Metrics) ObserveScenario(kind string) {
	m.ScenarioSelections.WithLabelValues(kind).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveRateLimited records one rejected request.
func (m *Metrics) ObserveRateLimited() {
	m.RateLimited.Inc()
}

// ObserveWorkerMessage records one processed bus message.
func (m *Metrics) ObserveWorkerMessage(outcome string) {
	m.WorkerMessages.WithLabelValues(outcome).Inc()
}
