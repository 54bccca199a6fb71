// Package metrics exposes ingestion counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	pagesProcessed  *prometheus.CounterVec
	eventsExtracted *prometheus.CounterVec
	repairOutcomes  *prometheus.CounterVec
	upsertOutcomes  *prometheus.CounterVec
	rateLimitWait   *prometheus.HistogramVec
}

// New registers all series on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_comb",
		Name:      "runs_total",
		Help:      "Ingestion runs by source and final status",
	}, []string{"source", "status"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "event_comb",
		Name:      "run_duration_seconds",
		Help:      "Wall time of ingestion runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"source"})
	m.pagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_comb",
		Name:      "pages_processed_total",
		Help:      "Fetched pages run through the extractor chain",
	}, []string{"source"})
	m.eventsExtracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_comb",
		Name:      "events_extracted_total",
		Help:      "Candidate events by extraction strategy",
	}, []string{"strategy"})
	m.repairOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_comb",
		Name:      "completion_responses_total",
		Help:      "Completion responses by repair outcome",
	}, []string{"outcome"})
	m.upsertOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "event_comb",
		Name:      "upserts_total",
		Help:      "Stored event decisions",
	}, []string{"outcome"})
	m.rateLimitWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "event_comb",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a request slot",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"class"})

	m.registry.MustRegister(
		m.runsTotal, m.runDuration, m.pagesProcessed, m.eventsExtracted,
		m.repairOutcomes, m.upsertOutcomes, m.rateLimitWait,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRun(source, status string, duration time.Duration, pages int) {
	m.runsTotal.WithLabelValues(source, status).Inc()
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
	m.pagesProcessed.WithLabelValues(source).Add(float64(pages))
}

func (m *Metrics) ObserveExtract(strategy string, n int) {
	m.eventsExtracted.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) ObserveRepair(outcome string) {
	m.repairOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpserts(inserted, updated, skipped, failed int) {
	m.upsertOutcomes.WithLabelValues("inserted").Add(float64(inserted))
	m.upsertOutcomes.WithLabelValues("updated").Add(float64(updated))
	m.upsertOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	m.upsertOutcomes.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveWait(class string, waited time.Duration) {
	m.rateLimitWait.WithLabelValues(class).Observe(waited.Seconds())
}
