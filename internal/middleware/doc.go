// Package middleware provides HTTP middleware for the forensic service.
//
// It includes:
//   - Structured access logging through logrus, one entry per request, with
//     the claimed viewer ID and control characters stripped from request data
//   - Response compression for playlists and JSON reports
//   - Prometheus request metrics with low-cardinality path labels
//
// Segment requests are not access-logged by default; a playing viewer
// fetches one every few seconds.
package middleware
