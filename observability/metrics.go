// Package observability provides Prometheus metrics for the scanner.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ah_scanner"

// Metrics holds the scanner's collectors. All methods are safe on a nil receiver
// so components can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Fetcher
	FetchRequests *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	DataAnomalies *prometheus.CounterVec
	BudgetWait    prometheus.Histogram
	FetchLatency  *prometheus.HistogramVec

	// Poll cycles
	PollCycles           *prometheus.CounterVec
	CycleDuration        prometheus.Histogram
	EventsEmitted        *prometheus.CounterVec
	SnapshotSize         prometheus.Gauge
	TransactionsImported prometheus.Counter
	LastSuccessfulCycle  prometheus.Gauge

	// Compaction
	CompactionRuns *prometheus.CounterVec
	DaysCompacted  prometheus.Counter
	RowsPurged     *prometheus.CounterVec
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "Upstream requests by resource and outcome",
		}, []string{"resource", "outcome"}),
		FetchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "retries_total",
			Help:      "Upstream request retries by resource",
		}, []string{"resource"}),
		DataAnomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "data_anomalies_total",
			Help:      "Upstream records skipped for missing or invalid fields",
		}, []string{"resource"}),
		BudgetWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "budget_wait_seconds",
			Help:      "Time spent waiting on the request budget",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "request_duration_seconds",
			Help:      "Upstream request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),

		PollCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Poll cycles by kind and status",
		}, []string{"kind", "status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Listing poll cycle duration",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "events_total",
			Help:      "Events appended by type",
		}, []string{"type"}),
		SnapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "snapshot_listings",
			Help:      "Listings in the current snapshot",
		}),
		TransactionsImported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "transactions_imported_total",
			Help:      "New transactions stored",
		}),
		LastSuccessfulCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last persisted listing cycle",
		}),

		CompactionRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compactor",
			Name:      "runs_total",
			Help:      "Compaction runs by status",
		}, []string{"status"}),
		DaysCompacted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compactor",
			Name:      "days_total",
			Help:      "Days rolled up and purged",
		}),
		RowsPurged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compactor",
			Name:      "rows_purged_total",
			Help:      "Raw rows deleted by table",
		}, []string{"table"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(resource, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(resource, outcome).Inc()
	m.FetchLatency.WithLabelValues(resource).Observe(took.Seconds())
}

func (m *Metrics) ObserveRetry(resource string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(resource).Inc()
}

func (m *Metrics) ObserveAnomalies(resource string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DataAnomalies.WithLabelValues(resource).Add(float64(n))
}

func (m *Metrics) ObserveBudgetWait(d time.Duration) {
	if m == nil {
		return
	}
	m.BudgetWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveCycle(kind, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(kind, status).Inc()
	if kind == "listings" {
		m.CycleDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveEvents(counts map[string]int) {
	if m == nil {
		return
	}
	for t, n := range counts {
		m.EventsEmitted.WithLabelValues(t).Add(float64(n))
	}
}

func (m *Metrics) ObserveSnapshot(size int, at time.Time) {
	if m == nil {
		return
	}
	m.SnapshotSize.Set(float64(size))
	m.LastSuccessfulCycle.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveTransactions(n int) {
	if m == nil {
		return
	}
	m.TransactionsImported.Add(float64(n))
}

func (m *Metrics) ObserveCompaction(status string, days int, events, prices int64) {
	if m == nil {
		return
	}
	m.CompactionRuns.WithLabelValues(status).Inc()
	m.DaysCompacted.Add(float64(days))
	m.RowsPurged.WithLabelValues("events").Add(float64(events))
	m.RowsPurged.WithLabelValues("prices").Add(float64(prices))
}
