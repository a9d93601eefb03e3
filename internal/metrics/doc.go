// Package metrics provides Prometheus instrumentation for the forensic
// watermarking service.
//
// All metrics are prefixed with "media_forensics_" and registered through
// promauto at package init. They are exposed on the dedicated metrics port
// by the server binary.
//
// # Metric Categories
//
//   - HTTP: request counts, latency and in-flight requests
//   - Database: query counts and latency by operation
//   - Tools: ffmpeg/ffprobe invocations by operation and outcome
//   - Packaging: runs, durations, slot usage, garbage collection
//   - Analysis: runs, sample outcomes, auto-extension, top match ratio
//   - Library: published rendition sets, storage and fingerprint counts
//   - Memory: heap usage ratio and extraction pauses under pressure
//
// InitializeMetrics pre-populates label combinations so dashboards see every
// series from the first scrape. Collector refreshes the library gauges from a
// StatsProvider on a fixed interval.
package metrics
