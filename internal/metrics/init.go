package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{"probe", "extract", "compose"} {
		for _, status := range []string{"success", "error", "timeout"} {
			ToolInvocationsTotal.WithLabelValues(op, status)
		}
		ToolDuration.WithLabelValues(op)
	}

	for _, mode := range []string{"forensic", "legacy"} {
		PackageRunsTotal.WithLabelValues(mode, "success")
		PackageRunsTotal.WithLabelValues(mode, "error")
		PackageDuration.WithLabelValues(mode)
	}

	for _, v := range []string{"A", "B", "legacy"} {
		SegmentRequestsTotal.WithLabelValues(v)
	}
	for _, reason := range []string{"timeout", "client_gone", "error"} {
		SegmentDeliveryAbortedTotal.WithLabelValues(reason)
	}

	for _, layout := range []string{"v1", "v2"} {
		AnalysisRunsTotal.WithLabelValues(layout, "success")
		AnalysisRunsTotal.WithLabelValues(layout, "error")
		RenditionSetsTotal.WithLabelValues(layout)
	}
	RenditionSetsTotal.WithLabelValues("legacy")

	for _, outcome := range []string{"usable", "null", "failed"} {
		AnalysisSamplesTotal.WithLabelValues(outcome)
	}

	for _, op := range []string{"initialize_schema", "assign_fingerprint", "list_fingerprints",
		"get_fingerprint", "record_session", "count_fingerprints", "purge_sessions"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, op := range []string{"stat", "rename", "remove"} {
		for _, vol := range []string{"renditions", "media", "database", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}
}
