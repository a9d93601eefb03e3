package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"media-forensics/internal/logging"
	"media-forensics/internal/metrics"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var (
	ErrProbeFailed   = errors.New("probe failed")
	ErrNoVideoStream = errors.New("no video stream")
	ErrEmptyFrame    = errors.New("frame extraction produced no output")
)

// ToolError reports a failed external tool invocation.
type ToolError struct {
	Op       string
	Err      error
	Stderr   string
	TimedOut bool
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	if e.TimedOut {
		msg = fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	if e.Stderr != "" {
		msg += " - " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Options configures the external tools.
type Options struct {
	FFmpegPath     string
	FFprobePath    string
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
	ComposeTimeout time.Duration
}

// DefaultOptions returns tool paths from PATH and finite timeouts.
func DefaultOptions() Options {
	return Options{
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		ProbeTimeout:   30 * time.Second,
		ExtractTimeout: 30 * time.Second,
		ComposeTimeout: 2 * time.Hour,
	}
}

// Transcoder runs ffprobe/ffmpeg on behalf of the packager and analyzer and
// tracks in-flight processes so they can be killed on shutdown.
type Transcoder struct {
	opts      Options
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// VideoInfo contains information about a video file.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
}

// New creates a new Transcoder instance.
func New(opts Options) *Transcoder {
	defaults := DefaultOptions()
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = defaults.FFmpegPath
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = defaults.FFprobePath
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaults.ProbeTimeout
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = defaults.ExtractTimeout
	}
	if opts.ComposeTimeout <= 0 {
		opts.ComposeTimeout = defaults.ComposeTimeout
	}

	return &Transcoder{
		opts:      opts,
		processes: make(map[string]*exec.Cmd),
	}
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// Probe returns the container duration and first video stream dimensions.
// It fails when the duration cannot be determined rather than guessing.
func (t *Transcoder) Probe(ctx context.Context, filePath string) (*VideoInfo, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.ProbeTimeout)
	defer cancel()

	stdout, err := t.run(ctx, "probe", t.opts.FFprobePath, ProbeArgs(filePath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	return parseProbe(stdout)
}

func parseProbe(data []byte) (*VideoInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %w", ErrProbeFailed, err)
	}

	info := &VideoInfo{}
	var streamDuration string
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width, info.Height, info.Codec = s.Width, s.Height, s.CodecName
			streamDuration = s.Duration
			break
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, ErrNoVideoStream
	}

	raw := out.Format.Duration
	if raw == "" {
		raw = streamDuration
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, fmt.Errorf("%w: unusable duration %q", ErrProbeFailed, raw)
	}
	info.Duration = duration

	return info, nil
}

// ExtractFrame decodes the frame at `at` seconds.
func (t *Transcoder) ExtractFrame(ctx context.Context, filePath string, at float64) (image.Image, error) {
	args, err := FrameArgs(filePath, at)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.ExtractTimeout)
	defer cancel()

	stdout, err := t.run(ctx, "extract", t.opts.FFmpegPath, args)
	if err != nil {
		return nil, err
	}
	if len(stdout) == 0 {
		return nil, fmt.Errorf("%w at %.3fs of %s", ErrEmptyFrame, at, filePath)
	}

	img, err := imaging.Decode(bytes.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted frame: %w", err)
	}
	return img, nil
}

// Compose runs one compose+encode+segment pass into p.OutputDir.
func (t *Transcoder) Compose(ctx context.Context, p ComposeParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.ComposeTimeout)
	defer cancel()

	_, err := t.run(ctx, "compose", t.opts.FFmpegPath, p.Args())
	return err
}

// run executes a tool, tracking the process for Cleanup.
func (t *Transcoder) run(ctx context.Context, op, bin string, args []string) ([]byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	key := op + "-" + uuid.NewString()
	t.processMu.Lock()
	t.processes[key] = cmd
	t.processMu.Unlock()
	metrics.ToolProcessesActive.Inc()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, key)
		t.processMu.Unlock()
		metrics.ToolProcessesActive.Dec()
	}()

	logging.Debug("Running %s: %s %v", op, bin, args)
	err := cmd.Run()
	metrics.ToolDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		toolErr := &ToolError{
			Op:       op,
			Err:      err,
			Stderr:   SanitizeStderr(stderr.String()),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		}
		status := "error"
		if toolErr.TimedOut {
			status = "timeout"
		}
		metrics.ToolInvocationsTotal.WithLabelValues(op, status).Inc()
		return nil, toolErr
	}

	metrics.ToolInvocationsTotal.WithLabelValues(op, "success").Inc()
	return stdout.Bytes(), nil
}

// Active returns the number of tool processes currently running.
func (t *Transcoder) Active() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup stops all active tool processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for key, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing tool process: %s", key)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill tool process %s: %v", key, err)
			}
		}
	}
}
