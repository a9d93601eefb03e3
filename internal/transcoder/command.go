package transcoder

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
)

// Segment duration bounds accepted by the compose builder.
const (
	MinSegmentSeconds = 2
	MaxSegmentSeconds = 10

	// MaxOverlayOpacity keeps overlays in the near-invisible range.
	MaxOverlayOpacity = 0.05

	PlaylistName   = "index.m3u8"
	SegmentPattern = "segment_%05d.ts"
)

var ErrInvalidParams = errors.New("invalid transcoder parameters")

// Overlay is a filled translucent rectangle in pixel coordinates.
type Overlay struct {
	Rect    image.Rectangle
	Color   string // "white" or "black"
	Opacity float64
}

// ComposeParams describes one compose+encode+segment pass.
type ComposeParams struct {
	Input          string
	OutputDir      string
	Width          int
	Height         int
	Overlays       []Overlay
	SegmentSeconds int
	CRF            int
	Preset         string
	AudioBitrateK  int
}

var allowedPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true,
	"fast": true, "medium": true, "slow": true, "slower": true, "veryslow": true,
}

// Validate checks numeric ranges before any process is spawned.
func (p ComposeParams) Validate() error {
	var errs []error
	if p.Input == "" {
		errs = append(errs, errors.New("input path is empty"))
	}
	if p.OutputDir == "" {
		errs = append(errs, errors.New("output directory is empty"))
	}
	if p.SegmentSeconds < MinSegmentSeconds || p.SegmentSeconds > MaxSegmentSeconds {
		errs = append(errs, fmt.Errorf("segment duration %ds outside %d-%ds", p.SegmentSeconds, MinSegmentSeconds, MaxSegmentSeconds))
	}
	if p.CRF < 0 || p.CRF > 51 {
		errs = append(errs, fmt.Errorf("crf %d outside 0-51", p.CRF))
	}
	if !allowedPresets[p.Preset] {
		errs = append(errs, fmt.Errorf("unknown preset %q", p.Preset))
	}
	if p.AudioBitrateK < 32 || p.AudioBitrateK > 512 {
		errs = append(errs, fmt.Errorf("audio bitrate %dk outside 32-512k", p.AudioBitrateK))
	}
	if len(p.Overlays) > 0 && (p.Width <= 0 || p.Height <= 0) {
		errs = append(errs, fmt.Errorf("overlays require frame dimensions, got %dx%d", p.Width, p.Height))
	}
	frame := image.Rect(0, 0, p.Width, p.Height)
	for i, o := range p.Overlays {
		if o.Rect.Empty() || !o.Rect.In(frame) {
			errs = append(errs, fmt.Errorf("overlay %d %v outside frame %v", i, o.Rect, frame))
		}
		if o.Opacity <= 0 || o.Opacity > MaxOverlayOpacity {
			errs = append(errs, fmt.Errorf("overlay %d opacity %.4f outside (0, %.2f]", i, o.Opacity, MaxOverlayOpacity))
		}
		if o.Color != "white" && o.Color != "black" {
			errs = append(errs, fmt.Errorf("overlay %d color %q not white/black", i, o.Color))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}

// Filter returns the drawbox filter chain for the overlays, or "" when
// there are none.
func (p ComposeParams) Filter() string {
	parts := make([]string, 0, len(p.Overlays))
	for _, o := range p.Overlays {
		parts = append(parts, fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=%s@%s:t=fill",
			o.Rect.Min.X, o.Rect.Min.Y, o.Rect.Dx(), o.Rect.Dy(), o.Color,
			strconv.FormatFloat(o.Opacity, 'f', 4, 64)))
	}
	return strings.Join(parts, ",")
}

// Args builds the ffmpeg argument list. Call Validate first.
func (p ComposeParams) Args() []string {
	seg := strconv.Itoa(p.SegmentSeconds)
	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-i", p.Input,
		"-map", "0:v:0", "-map", "0:a:0?",
	}
	if filter := p.Filter(); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", "yuv420p",
		"-force_key_frames", "expr:gte(t,n_forced*"+seg+")",
		"-c:a", "aac",
		"-b:a", strconv.Itoa(p.AudioBitrateK)+"k",
		"-f", "hls",
		"-hls_time", seg,
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(p.OutputDir, SegmentPattern),
		filepath.Join(p.OutputDir, PlaylistName),
	)
	return args
}

// FrameArgs builds the ffmpeg arguments that write the single frame at
// `at` seconds to stdout as PNG.
func FrameArgs(input string, at float64) ([]string, error) {
	if input == "" {
		return nil, fmt.Errorf("%w: input path is empty", ErrInvalidParams)
	}
	if at < 0 {
		return nil, fmt.Errorf("%w: negative timestamp %.3f", ErrInvalidParams, at)
	}
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}, nil
}

// ProbeArgs builds the ffprobe arguments for a JSON format+streams report.
func ProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
}

var bannerPrefixes = []string{
	"ffmpeg version", "ffprobe version", "built with", "configuration:",
	"libavutil", "libavcodec", "libavformat", "libavdevice", "libavfilter",
	"libswscale", "libswresample", "libpostproc", "copyright",
}

// maxStderr bounds sanitized tool output carried in errors and logs.
const maxStderr = 2048

// SanitizeStderr strips tool banner noise and control characters from
// stderr and truncates the remainder.
func SanitizeStderr(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.Map(func(r rune) rune {
			if r < 0x20 && r != '\t' {
				return -1
			}
			return r
		}, line))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		banner := false
		for _, prefix := range bannerPrefixes {
			if strings.HasPrefix(lower, prefix) {
				banner = true
				break
			}
		}
		if !banner {
			kept = append(kept, line)
		}
	}
	out := strings.Join(kept, "; ")
	if len(out) > maxStderr {
		out = out[:maxStderr] + "..."
	}
	return out
}
