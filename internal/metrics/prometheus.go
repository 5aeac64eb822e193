// Package metrics records engine events with Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements the pricing, risk and server metrics hooks.
type Recorder struct {
	registry       *prometheus.Registry
	ivFallbacks    *prometheus.CounterVec
	chainRows      *prometheus.CounterVec
	strategies     *prometheus.CounterVec
	simulatedPaths prometheus.Counter
	latency        *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
}

// New creates a recorder backed by its own registry so that several
// recorders can coexist in one process (tests, embedded servers).
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ivFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "pricing",
				Name:      "iv_fallbacks_total",
				Help:      "Implied volatility solves that returned the fallback volatility",
			},
			[]string{"kind"},
		),
		chainRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "pricing",
				Name:      "chain_rows_total",
				Help:      "Option chain rows processed, by outcome",
			},
			[]string{"outcome"},
		),
		strategies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "strategy",
				Name:      "built_total",
				Help:      "Strategies built, by name",
			},
			[]string{"strategy"},
		),
		simulatedPaths: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "risk",
				Name:      "simulated_paths_total",
				Help:      "Monte Carlo paths generated",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "optlab",
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"route", "method", "status"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "optlab",
				Subsystem: "marketdata",
				Name:      "cache_lookups_total",
				Help:      "Market snapshot cache lookups, by result",
			},
			[]string{"result"},
		),
	}
}

// RecordIVFallback records an implied volatility solve that fell back.
func (r *Recorder) RecordIVFallback(kind string) {
	r.ivFallbacks.WithLabelValues(kind).Inc()
}

// RecordChainRow records one chain row outcome ("analysed" or "skipped").
func (r *Recorder) RecordChainRow(outcome string) {
	r.chainRows.WithLabelValues(outcome).Inc()
}

// RecordStrategy records a strategy construction.
func (r *Recorder) RecordStrategy(name string) {
	r.strategies.WithLabelValues(name).Inc()
}

// RecordPaths records simulated paths.
func (r *Recorder) RecordPaths(n int) {
	r.simulatedPaths.Add(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRequest records a served HTTP request.
func (r *Recorder) RecordRequest(route, method, status string) {
	r.requests.WithLabelValues(route, method, status).Inc()
}

// RecordCacheLookup records a cache "hit" or "miss".
func (r *Recorder) RecordCacheLookup(result string) {
	r.cacheLookups.WithLabelValues(result).Inc()
}

// Handler exposes the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
