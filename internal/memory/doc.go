// Package memory sizes the Go heap for containerized deployments and gates
// frame extraction under memory pressure.
//
// Decoded frames are the largest allocations an analysis makes, and every
// extraction also runs an ffmpeg child that lives outside the Go heap.
// [ConfigureFromEnv] sets GOMEMLIMIT from the container limit, reserving a
// share for those children:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set
//   - MEMORY_LIMIT: container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the heap (default 0.85)
//
// A [Monitor] samples heap allocation against the limit. Above the critical
// watermark it pauses callers of [Monitor.Wait] until usage falls back under
// the high watermark. The analyzer calls Wait before each extraction.
package memory
