// Package handlers implements the HTTP surface of the forensic service.
//
// Viewer playback:
//   - GET /api/media/{id}/playlist.m3u8 assigns the viewer's fingerprint
//     identity, records the playback session and returns an HLS playlist
//     whose segment URIs point back at this service.
//   - GET /api/media/{id}/segments/{index}.ts serves each segment from the
//     A or B rendition chosen by the viewer's identity.
//
// The viewer is identified by the X-User-ID header set by the upstream
// authentication proxy, or by the user query parameter the playlist embeds
// in segment URIs.
//
// Administration:
//   - POST /api/forensics/{id}/analyze runs attribution on a leaked copy.
//   - GET /api/forensics/{id}/identities lists issued identities.
//   - GET /api/forensics/{id}/sessions lists recent playback sessions.
//
// Health endpoints follow the Kubernetes probe conventions.
package handlers
