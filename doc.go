// Package main provides the entry point for the Media Forensics server.
//
// Media Forensics serves HLS video with per-viewer forensic watermarks and
// attributes leaked copies back to the viewer whose stream they came from.
// Every media item is packaged into two renditions, A and B, that differ only
// in near-invisible overlay boxes. Each viewer receives a deterministic,
// identity-specific interleaving of A and B segments, and a leaked copy
// carries that interleaving in its frames.
//
// # Application Lifecycle
//
// The application follows a structured initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT or cgroup limits
//  2. Configuration Loading: Reads environment variables and validates directories
//  3. Error Reporting: Initializes Sentry when SENTRY_DSN is set
//  4. Database Initialization: Opens SQLite (or PostgreSQL via DATABASE_URL)
//  5. Tool Checks: Verifies ffmpeg and ffprobe are runnable
//  6. Component Initialization:
//     - Memory Monitor: Pauses frame extraction under heap pressure
//     - Transcoder: Runs ffprobe/ffmpeg and tracks child processes
//     - Fingerprint Oracle and Attribution: Only when forensic mode is enabled
//     - Metrics Collector: Gathers Prometheus metrics
//  7. HTTP Server Setup: Configures routes, middleware, and starts server
//  8. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # Background Services
//
//   - Metrics Collector: Updates rendition and identity gauges every minute
//   - Maintenance: Hourly rendition garbage collection and session purge
//   - Memory Monitor: Samples heap usage every few seconds
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - Health endpoints (/health, /healthz, /livez, /readyz, /version)
//     - GET  /api/media/{id}/playlist.m3u8 (viewer playlist, assigns identity)
//     - GET  /api/media/{id}/segments/{index}.ts (viewer-specific segment)
//     - POST /api/forensics/{id}/analyze (attribute a file on the server)
//     - GET  /api/forensics/{id}/identities and /sessions
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Health check endpoint (/health)
//
// The viewer is identified by the X-User-ID header set by an upstream
// authenticating proxy, or by the user query parameter on segment URIs.
//
// Packaging is done offline with the forensics command (cmd/forensics).
//
// # Graceful Shutdown
//
//  1. Stop metrics collector, maintenance loop and memory monitor
//  2. Kill in-flight ffmpeg/ffprobe processes
//  3. Shutdown metrics server (if running)
//  4. Shutdown main HTTP server (30s timeout)
//  5. Flush pending error reports
//  6. Close database connections
//
// # Related Packages
//
//   - [media-forensics/internal/fingerprint]: Identity oracle and expected variants
//   - [media-forensics/internal/geometry]: Watermark region placement
//   - [media-forensics/internal/packager]: Rendition build, publish and GC
//   - [media-forensics/internal/analyzer]: Leak sampling and bit recovery
//   - [media-forensics/internal/matcher]: Offset search and ranking
//   - [media-forensics/internal/attribution]: Analyze, match and report
//   - [media-forensics/internal/database]: Identity store and session log
//   - [media-forensics/internal/handlers]: HTTP request handlers
//   - [media-forensics/internal/startup]: Configuration and initialization
//   - [media-forensics/internal/telemetry]: Sentry error reporting
package main
