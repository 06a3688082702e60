package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for monitoring print traffic, auth behavior and
// publication work
var (
	PrintReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_reports_total",
			Help: "Print reports accepted into the ledger, by result",
		},
		[]string{"result"},
	)

	PrintChecksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "print_checks_total",
			Help: "Duplicate checks served",
		},
	)

	DuplicateHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_hits_total",
			Help: "Duplicate checks that found a prior success, by kind",
		},
		[]string{"kind"},
	)

	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected client authentication attempts",
		},
	)

	PrintReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "print_report_duration_seconds",
			Help:    "Duration of print report handling",
			Buckets: prometheus.DefBuckets,
		},
	)

	ArchiveBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_builds_total",
			Help: "Daily archive builds, by outcome",
		},
		[]string{"outcome"},
	)

	ArchiveBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archive_build_duration_seconds",
			Help:    "Duration of daily archive builds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	MappingPublishesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mapping_publishes_total",
			Help: "Order mapping snapshot publications",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(PrintReportsTotal)
	prometheus.MustRegister(PrintChecksTotal)
	prometheus.MustRegister(DuplicateHitsTotal)
	prometheus.MustRegister(AuthFailuresTotal)
	prometheus.MustRegister(PrintReportDuration)
	prometheus.MustRegister(ArchiveBuildsTotal)
	prometheus.MustRegister(ArchiveBuildDuration)
	prometheus.MustRegister(MappingPublishesTotal)
}
