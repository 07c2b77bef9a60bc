package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resultPagesFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_result_pages_fetched_total",
			Help: "Total number of result pages fetched from the SQL gateway.",
		},
	)
	resultRowsBufferedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_result_rows_buffered_total",
			Help: "Total number of normalized rows appended to session buffers.",
		},
	)
	resultRowsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_result_rows_dropped_total",
			Help: "Total number of rows dropped because a session buffer hit its limit.",
		},
	)
	fetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlens_fetch_errors_total",
			Help: "Total number of result fetch errors by classification.",
		},
		[]string{"class"},
	)
	statusRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_status_refreshes_total",
			Help: "Total number of statement status refreshes.",
		},
	)
	fetchLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamlens_fetch_latency_ms",
			Help:    "Result page fetch latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamlens_active_sessions",
			Help: "Current count of live watch sessions.",
		},
	)
	exportedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_exported_bytes_total",
			Help: "Total bytes of snapshot exports uploaded to object storage.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		resultPagesFetchedTotal,
		resultRowsBufferedTotal,
		resultRowsDroppedTotal,
		fetchErrorsTotal,
		statusRefreshesTotal,
		fetchLatencyMs,
		activeSessions,
		exportedBytesTotal,
	)
}

func ObservePageFetch(rows, dropped int, elapsed time.Duration) {
	resultPagesFetchedTotal.Inc()
	if rows > 0 {
		resultRowsBufferedTotal.Add(float64(rows))
	}
	if dropped > 0 {
		resultRowsDroppedTotal.Add(float64(dropped))
	}
	fetchLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementFetchError(class string) {
	fetchErrorsTotal.WithLabelValues(class).Inc()
}

func IncrementStatusRefresh() {
	statusRefreshesTotal.Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func ObserveExportedBytes(size int64) {
	if size > 0 {
		exportedBytesTotal.Add(float64(size))
	}
}
