// Package mediatypes maps file extensions to the media kinds and MIME types
// the server handles: HLS playlists, MPEG-TS segments and the video
// containers accepted as package sources or leaked copies.
//
// Extensions are matched case-insensitively and include the leading dot:
//
//	mediatypes.KindOf(".M3U8")     // KindPlaylist
//	mediatypes.MimeType(".ts")     // "video/mp2t"
//	mediatypes.IsVideo("leak.MKV") // true
package mediatypes
