// Package transcoder wraps the external video tools the forensic engine
// depends on.
//
// It provides:
//   - Probe: container duration and video dimensions via ffprobe
//   - Compose: overlay + encode + HLS segmentation in one ffmpeg pass
//   - ExtractFrame: a single decoded frame at a timestamp
//
// Arguments come from typed, validated builders (ComposeParams, FrameArgs,
// ProbeArgs). Every invocation runs under a finite timeout; a timeout is
// reported as a *ToolError with TimedOut set. Tool stderr is passed through
// SanitizeStderr before it reaches errors or logs.
//
// FFmpeg and ffprobe must be installed and available in PATH (or configured
// through Options).
package transcoder
