// Package playlist reads and writes HLS media playlists.
//
// Packaged renditions are described by the index.m3u8 the encoder writes for
// each variant. The packager parses it to count segments, and the playback
// endpoint re-emits it with segment URIs that resolve to the viewer's own
// A/B sequence.
package playlist
