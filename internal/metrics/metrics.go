package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_forensics_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_forensics_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// External tool metrics
var (
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_tool_invocations_total",
			Help: "Total number of ffmpeg/ffprobe invocations",
		},
		[]string{"operation", "status"}, // status: success, error, timeout
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_forensics_tool_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe invocations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"operation"},
	)

	ToolProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_tool_processes_active",
			Help: "Number of external tool processes currently running",
		},
	)
)

// Packaging metrics
var (
	PackageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_package_runs_total",
			Help: "Total number of rendition packaging runs",
		},
		[]string{"mode", "status"}, // mode: forensic, legacy
	)

	PackageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_forensics_package_duration_seconds",
			Help:    "Duration of packaging runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"mode"},
	)

	PackageInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_package_in_progress",
			Help: "Number of packaging runs currently holding a transcode slot",
		},
	)

	RenditionGCRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_rendition_gc_removed_total",
			Help: "Total number of superseded or orphaned rendition directories removed",
		},
	)

	RenditionRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_rendition_recovered_total",
			Help: "Total number of superseded rendition sets restored after an interrupted publish",
		},
	)

	SegmentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_segment_requests_total",
			Help: "Total number of segments resolved for viewers by variant",
		},
		[]string{"variant"},
	)

	SegmentBytesServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_segment_bytes_served_total",
			Help: "Total number of segment bytes written to viewers",
		},
	)

	SegmentDeliveryAbortedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_segment_delivery_aborted_total",
			Help: "Segment deliveries cut short, by reason",
		},
		[]string{"reason"},
	)
)

// Analysis metrics
var (
	AnalysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_analysis_runs_total",
			Help: "Total number of leak analysis runs",
		},
		[]string{"layout", "status"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_forensics_analysis_duration_seconds",
			Help:    "Duration of leak analysis runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	AnalysisSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_analysis_samples_total",
			Help: "Total number of sampled frames by outcome",
		},
		[]string{"outcome"}, // usable, null, failed
	)

	AnalysisAutoExtendTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_analysis_auto_extend_total",
			Help: "Total number of analyses that were re-run with more samples",
		},
	)

	AnalysisTopMatchRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_forensics_analysis_top_match_ratio",
			Help:    "Match ratio of the top-ranked candidate",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		},
	)

	AnalysisWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_analysis_workers",
			Help: "Size of the frame extraction worker pool",
		},
	)
)

// Library metrics
var (
	RenditionSetsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_forensics_rendition_sets_total",
			Help: "Number of published rendition sets by layout",
		},
		[]string{"layout"}, // v1, v2, legacy
	)

	RenditionStorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_rendition_storage_bytes",
			Help: "Total size of published rendition sets in bytes",
		},
	)

	FingerprintsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_fingerprints_total",
			Help: "Number of recorded fingerprint assignments",
		},
	)

	FingerprintAssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_fingerprint_assignments_total",
			Help: "Total number of fingerprint assignment upserts",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_forensics_filesystem_stale_errors_total",
			Help: "Total number of stale file handle errors",
		},
		[]string{"operation", "volume"},
	)
)

// Memory pressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_forensics_memory_paused",
			Help: "1 while frame extraction is paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_forensics_memory_gc_pauses_total",
			Help: "Total number of times extraction was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_forensics_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
