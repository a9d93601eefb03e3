package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind classifies a file by extension.
type Kind string

const (
	// KindVideo is a container ffprobe can usually open directly.
	KindVideo Kind = "video"
	// KindPlaylist is an HLS media playlist.
	KindPlaylist Kind = "playlist"
	// KindSegment is an MPEG-TS media segment.
	KindSegment Kind = "segment"
	// KindOther is anything else.
	KindOther Kind = "other"
)

// VideoExtensions lists the containers accepted as package sources and
// typical leaked-copy formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".wmv":  true,
	".flv":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// MimeTypes maps extensions to the Content-Type they are served with.
var MimeTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
}

// Ext returns the lowercase extension of path, including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// KindOf returns the Kind for an extension such as ".mp4".
func KindOf(ext string) Kind {
	switch ext = strings.ToLower(ext); {
	case ext == ".m3u8":
		return KindPlaylist
	case ext == ".ts":
		return KindSegment
	case VideoExtensions[ext]:
		return KindVideo
	}
	return KindOther
}

// IsVideo reports whether path has a known video container extension.
// Segments count as video.
func IsVideo(path string) bool {
	return VideoExtensions[Ext(path)]
}

// MimeType returns the Content-Type for an extension, or
// application/octet-stream when it is unknown.
func MimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
