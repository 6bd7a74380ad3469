package metrics

import (
	"time"

	"github.com/IliaW/product-scrape-worker/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the worker.
type Metrics struct {
	Registry        *prometheus.Registry
	RecordsTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	FetchedBytes    prometheus.Counter
	ProductsTotal   prometheus.Counter
	WarningsTotal   *prometheus.CounterVec
	BatchesFinished prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_worker_records_total",
			Help: "Archive records processed, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "product_worker_fetch_duration_seconds",
			Help:    "Latency of ranged archive reads.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	fetchedBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "product_worker_fetched_bytes_total",
			Help: "Decompressed body bytes recovered from archive records.",
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "product_worker_products_total",
			Help: "Products extracted.",
		},
	)
	warnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_worker_extraction_warnings_total",
			Help: "Non-fatal extraction warnings, by warning.",
		},
		[]string{"warning"},
	)
	batches := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "product_worker_batches_total",
			Help: "Batches run to completion.",
		},
	)

	registry.MustRegister(records, fetchDuration, fetchedBytes, products, warnings, batches)

	return &Metrics{
		Registry:        registry,
		RecordsTotal:    records,
		FetchDuration:   fetchDuration,
		FetchedBytes:    fetchedBytes,
		ProductsTotal:   products,
		WarningsTotal:   warnings,
		BatchesFinished: batches,
	}
}

func (m *Metrics) IncOutcome(outcome model.Outcome) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == model.OutcomeExtracted {
		m.ProductsTotal.Inc()
	}
}

func (m *Metrics) ObserveFetch(d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
	m.FetchedBytes.Add(float64(bytes))
}

func (m *Metrics) IncWarning(warning string) {
	if m == nil {
		return
	}
	m.WarningsTotal.WithLabelValues(warning).Inc()
}

func (m *Metrics) IncBatch() {
	if m == nil {
		return
	}
	m.BatchesFinished.Inc()
}
