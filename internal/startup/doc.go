// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - FORENSIC_ENABLED: A/B fingerprinted renditions; false packages a single
//     unwatermarked rendition (default: true)
//   - FORENSIC_SECRET: Secret for identities and watermark geometry
//   - APP_SECRET: Fallback secret when FORENSIC_SECRET is empty
//   - WATERMARK_LAYOUT: v1 (tiles) or v2 (adjacent pairs) (default: v2)
//   - WATERMARK_OPACITY: Overlay alpha in (0, 0.05] (default: 0.006)
//   - SEGMENT_SECONDS: HLS segment length, 2 to 10 (default: 6)
//   - RENDITION_DIR: Published rendition sets (default: /cache/renditions)
//   - DATABASE_DIR: SQLite database location (default: /database)
//   - DATABASE_URL: postgres:// URL; selects PostgreSQL instead of SQLite
//   - ANALYZE_MAX_SAMPLES, ANALYZE_SAMPLE_CAP, ANALYZE_MAX_OFFSET: analysis
//     defaults (60, 200, 30)
//   - ANALYZE_OFFSET_CAP: Largest max_offset a request may ask for (default: 300)
//   - ANALYZE_WORKERS: Frame extractions per analysis (default: auto)
//   - TRANSCODE_SLOTS: Concurrent packaging runs (default: 1)
//   - PROBE_TIMEOUT, PACKAGE_TIMEOUT: Tool timeouts (default: 30s, 2h)
//   - RENDITION_RETENTION: Lifetime of superseded sets (default: 15m)
//   - SESSION_RETENTION: Lifetime of playback session rows (default: 2160h)
//   - FFMPEG_PATH, FFPROBE_PATH: Tool binaries (default: from PATH)
//   - PORT, METRICS_PORT, METRICS_ENABLED: HTTP (default: 8080, 9090, true)
//   - LOG_LEVEL, LOG_FORMAT, LOG_HEALTH_CHECKS: Logging
//
// Forensic mode refuses to start without a secret. Falling back to
// APP_SECRET is logged as a warning. The secret itself is never logged.
//
// # Directory Setup
//
// The rendition directory is created if needed and must be writable. The
// database directory is checked the same way unless DATABASE_URL is set.
//
// # Lifecycle Logging
//
//   - [LogMemoryConfig]: Memory limit configuration
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogTranscoderInit]: ffmpeg/ffprobe availability and packaging mode
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: Graceful shutdown
package startup
