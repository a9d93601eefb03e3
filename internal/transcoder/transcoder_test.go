package transcoder

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams(t *testing.T) ComposeParams {
	t.Helper()
	return ComposeParams{
		Input:          "/media/in.mp4",
		OutputDir:      t.TempDir(),
		Width:          1280,
		Height:         720,
		SegmentSeconds: 6,
		CRF:            20,
		Preset:         "veryfast",
		AudioBitrateK:  128,
		Overlays: []Overlay{
			{Rect: image.Rect(100, 50, 186, 136), Color: "white", Opacity: 0.006},
			{Rect: image.Rect(186, 50, 272, 136), Color: "black", Opacity: 0.006},
		},
	}
}

func TestComposeParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ComposeParams)
		ok     bool
	}{
		{"valid", func(*ComposeParams) {}, true},
		{"no overlays", func(p *ComposeParams) { p.Overlays = nil }, true},
		{"empty input", func(p *ComposeParams) { p.Input = "" }, false},
		{"empty output", func(p *ComposeParams) { p.OutputDir = "" }, false},
		{"segment too short", func(p *ComposeParams) { p.SegmentSeconds = 1 }, false},
		{"segment too long", func(p *ComposeParams) { p.SegmentSeconds = 11 }, false},
		{"crf out of range", func(p *ComposeParams) { p.CRF = 52 }, false},
		{"unknown preset", func(p *ComposeParams) { p.Preset = "fast;rm -rf" }, false},
		{"audio bitrate", func(p *ComposeParams) { p.AudioBitrateK = 8 }, false},
		{"opacity too high", func(p *ComposeParams) { p.Overlays[0].Opacity = 0.2 }, false},
		{"zero opacity", func(p *ComposeParams) { p.Overlays[0].Opacity = 0 }, false},
		{"bad color", func(p *ComposeParams) { p.Overlays[1].Color = "red" }, false},
		{"overlay outside frame", func(p *ComposeParams) { p.Overlays[0].Rect = image.Rect(1250, 700, 1300, 750) }, false},
		{"missing dimensions", func(p *ComposeParams) { p.Width = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams(t)
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParams)
			}
		})
	}
}

func TestComposeParamsFilter(t *testing.T) {
	p := validParams(t)
	assert.Equal(t,
		"drawbox=x=100:y=50:w=86:h=86:color=white@0.0060:t=fill,drawbox=x=186:y=50:w=86:h=86:color=black@0.0060:t=fill",
		p.Filter())

	p.Overlays = nil
	assert.Empty(t, p.Filter())
}

func TestComposeParamsArgs(t *testing.T) {
	p := validParams(t)
	args := p.Args()
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i /media/in.mp4")
	assert.Contains(t, joined, "-map 0:a:0?")
	assert.Contains(t, joined, "-vf drawbox=")
	assert.Contains(t, joined, "-force_key_frames expr:gte(t,n_forced*6)")
	assert.Contains(t, joined, "-hls_time 6")
	assert.Contains(t, joined, "-preset veryfast")
	assert.Equal(t, filepath.Join(p.OutputDir, PlaylistName), args[len(args)-1])

	p.Overlays = nil
	assert.NotContains(t, p.Args(), "-vf")
}

func TestFrameArgs(t *testing.T) {
	args, err := FrameArgs("/media/leak.mp4", 3.5)
	require.NoError(t, err)

	ssIdx, inIdx := -1, -1
	for i, a := range args {
		switch a {
		case "-ss":
			ssIdx = i
		case "-i":
			inIdx = i
		}
	}
	require.NotEqual(t, -1, ssIdx)
	assert.Less(t, ssIdx, inIdx, "seek must precede input for fast seeking")
	assert.Equal(t, "3.500", args[ssIdx+1])
	assert.Equal(t, "-", args[len(args)-1])

	_, err = FrameArgs("", 1)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = FrameArgs("/media/leak.mp4", -1)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestSanitizeStderr(t *testing.T) {
	raw := "ffmpeg version 6.1 Copyright (c) 2000-2023\n" +
		"  built with gcc 12\n" +
		"  libavutil      58. 29.100\n" +
		"\x1b[0;31m/media/x.mp4: Invalid data found when processing input\x1b[0m\n" +
		"\n" +
		"Conversion failed!\n"

	got := SanitizeStderr(raw)
	assert.NotContains(t, got, "ffmpeg version")
	assert.NotContains(t, got, "libavutil")
	assert.NotContains(t, got, "\x1b")
	assert.Contains(t, got, "Invalid data found when processing input")
	assert.True(t, strings.HasSuffix(got, "Conversion failed!"))

	long := SanitizeStderr(strings.Repeat("x", 5000))
	assert.Len(t, long, maxStderr+3)
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "61.000"}
		],
		"format": {"duration": "61.440000"}
	}`)

	info, err := parseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, "h264", info.Codec)
	assert.InDelta(t, 61.44, info.Duration, 1e-9)
}

func TestParseProbeFallsBackToStreamDuration(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","width":640,"height":360,"duration":"12.5"}],"format":{}}`))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, info.Duration, 1e-9)
}

func TestParseProbeFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"garbage", `not json`, ErrProbeFailed},
		{"no video", `{"streams":[{"codec_type":"audio"}],"format":{"duration":"10"}}`, ErrNoVideoStream},
		{"missing duration", `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{}}`, ErrProbeFailed},
		{"na duration", `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{"duration":"N/A"}}`, ErrProbeFailed},
		{"zero duration", `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{"duration":"0"}}`, ErrProbeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProbe([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToolError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := error(&ToolError{Op: "compose", Err: inner, Stderr: "Conversion failed!"})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "compose failed: exit status 1 - Conversion failed!", err.Error())

	timed := &ToolError{Op: "probe", Err: context.DeadlineExceeded, TimedOut: true}
	assert.Contains(t, timed.Error(), "timed out")
}

func TestNewAppliesDefaults(t *testing.T) {
	tr := New(Options{})
	assert.Equal(t, "ffmpeg", tr.opts.FFmpegPath)
	assert.Equal(t, "ffprobe", tr.opts.FFprobePath)
	assert.Positive(t, tr.opts.ProbeTimeout)
	assert.Positive(t, tr.opts.ComposeTimeout)
	assert.Equal(t, 0, tr.Active())
}

// writeScript installs a fake tool in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProbeMissingFile(t *testing.T) {
	tr := New(Options{})
	_, err := tr.Probe(context.Background(), "/nonexistent/file.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbeWithFakeTool(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	probe := writeScript(t, `echo '{"streams":[{"codec_type":"video","codec_name":"h264","width":320,"height":240}],"format":{"duration":"30.0"}}'`)
	tr := New(Options{FFprobePath: probe})

	info, err := tr.Probe(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 320, info.Width)
	assert.InDelta(t, 30.0, info.Duration, 1e-9)
	assert.Equal(t, 0, tr.Active())
}

func TestProbeToolFailure(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	probe := writeScript(t, `echo "in.mp4: Invalid data found when processing input" >&2; exit 1`)
	tr := New(Options{FFprobePath: probe})

	_, err := tr.Probe(context.Background(), input)
	require.ErrorIs(t, err, ErrProbeFailed)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "probe", toolErr.Op)
	assert.False(t, toolErr.TimedOut)
	assert.Contains(t, toolErr.Stderr, "Invalid data")
}

func TestProbeTimeout(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	probe := writeScript(t, `exec sleep 10`)
	tr := New(Options{FFprobePath: probe, ProbeTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := tr.Probe(context.Background(), input)
	assert.Less(t, time.Since(start), 5*time.Second)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.True(t, toolErr.TimedOut)
}

func TestComposeRejectsInvalidParams(t *testing.T) {
	tr := New(Options{FFmpegPath: "/nonexistent/ffmpeg"})
	p := validParams(t)
	p.SegmentSeconds = 30

	err := tr.Compose(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestExtractFrameEmptyOutput(t *testing.T) {
	ffmpeg := writeScript(t, `exit 0`)
	tr := New(Options{FFmpegPath: ffmpeg})

	_, err := tr.ExtractFrame(context.Background(), "/media/in.mp4", 1)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestCleanupWithNoProcesses(t *testing.T) {
	tr := New(Options{})
	assert.NotPanics(t, tr.Cleanup)
}
