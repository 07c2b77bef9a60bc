package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlens_retention_runs_total",
			Help: "Total number of retention runs by status.",
		},
		[]string{"status"},
	)
	retentionExportsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_retention_exports_deleted_total",
			Help: "Total number of export files deleted by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlens_integrity_runs_total",
			Help: "Total number of export integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityMissingExportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlens_integrity_missing_exports_total",
			Help: "Total number of missing export files detected by integrity checks.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionExportsDeletedTotal,
		integrityRunsTotal,
		integrityMissingExportsTotal,
	)
}
