// Package metrics exposes Prometheus collectors for the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "findash"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	BuildDuration prometheus.Histogram
	BuildFailures *prometheus.CounterVec
	Records       prometheus.Gauge
	Duplicates    *prometheus.CounterVec
	SkippedRows   prometheus.Counter
	SourceFetch   *prometheus.HistogramVec
	Imports       *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	RateLimited   prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_build_seconds",
			Help:      "Time to fetch, merge and summarize both sources.",
			Buckets:   prometheus.DefBuckets,
		}),
		BuildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_build_failures_total",
			Help:      "Dashboard builds that did not produce data, by reason.",
		}, []string{"reason"}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_records",
			Help:      "Months in the most recent merged dataset.",
		}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_months_total",
			Help:      "Rows dropped because their month was already seen.",
		}, []string{"source"}),
		SkippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_rows_total",
			Help:      "Rows dropped for having no month.",
		}),
		SourceFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_seconds",
			Help:      "Row source read latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "outcome"}),
		Imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Staging imports by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BuildDuration, m.BuildFailures, m.Records, m.Duplicates, m.SkippedRows,
		m.SourceFetch, m.Imports, m.HTTPRequests, m.HTTPDuration, m.RateLimited,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveFetch records one source read.
func (m *Metrics) ObserveFetch(source string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SourceFetch.WithLabelValues(source, outcome).Observe(elapsed.Seconds())
}

// ObserveImport counts one import attempt.
func (m *Metrics) ObserveImport(trigger string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Imports.WithLabelValues(trigger, outcome).Inc()
}
