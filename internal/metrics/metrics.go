// Package metrics defines the Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Classification outcomes.
const (
	OutcomeSignal   = "signal"
	OutcomeFiltered = "filtered"
	OutcomeFailed   = "failed"
)

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiresum_sync_runs_total",
		Help: "Ingestion runs by result",
	}, []string{"result"})

	EntriesSynced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wiresum_entries_synced_total",
		Help: "Entries upserted by ingestion",
	})

	Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiresum_classifications_total",
		Help: "Persisted classification outcomes",
	}, []string{"outcome"})

	Enrichments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiresum_enrichment_total",
		Help: "Content enrichment attempts by result",
	}, []string{"result"})

	OracleRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wiresum_oracle_request_duration_seconds",
		Help:    "Duration of classification oracle calls",
		Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 8, 13, 21, 30, 60},
	}, []string{"model", "status"})

	OracleTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiresum_oracle_tokens_total",
		Help: "Tokens reported by the oracle",
	}, []string{"model", "type"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiresum_http_requests_total",
		Help: "API requests by route and status class",
	}, []string{"route", "code"})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SyncRuns,
		EntriesSynced,
		Classifications,
		Enrichments,
		OracleRequestDuration,
		OracleTokens,
		HTTPRequests,
	)
}

// NewRegistry returns a registry holding the pipeline collectors plus the
// Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	MustRegister(reg)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveOracle records the duration and status of one oracle call.
func ObserveOracle(model string, start time.Time, err error) {
	if model == "" {
		model = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	OracleRequestDuration.WithLabelValues(model, status).Observe(time.Since(start).Seconds())
}

// ObserveTokens adds token usage reported by the oracle.
func ObserveTokens(model string, prompt, completion int) {
	if model == "" {
		model = "unknown"
	}
	if prompt > 0 {
		OracleTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		OracleTokens.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// ObserveSync records one ingestion run.
func ObserveSync(count int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SyncRuns.WithLabelValues(result).Inc()
	if count > 0 {
		EntriesSynced.Add(float64(count))
	}
}
