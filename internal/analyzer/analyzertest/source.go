// Package analyzertest provides a synthetic FrameSource that renders
// watermarked frames without external tools.
package analyzertest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/transcoder"

	"github.com/disintegration/imaging"
)

// ErrExtract is returned for segments listed in Source.FailAt.
var ErrExtract = errors.New("synthetic extraction failure")

// Source renders segment i of a fake video with Variants[i]'s watermark.
// Segments past the end of Variants carry no watermark.
type Source struct {
	Width, Height  int
	Duration       float64
	SegmentSeconds int
	Regions        []geometry.Region
	Variants       []fingerprint.Variant
	// Strength is the luma delta of light and dark boxes.
	Strength   float64
	Background uint8
	ProbeErr   error
	FailAt     map[int]bool
	Delay      time.Duration

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
}

// Probe reports the configured duration and size.
func (s *Source) Probe(_ context.Context, _ string) (*transcoder.VideoInfo, error) {
	if s.ProbeErr != nil {
		return nil, s.ProbeErr
	}
	return &transcoder.VideoInfo{Duration: s.Duration, Width: s.Width, Height: s.Height, Codec: "h264"}, nil
}

// ExtractFrame renders the frame at `at` seconds.
func (s *Source) ExtractFrame(ctx context.Context, _ string, at float64) (image.Image, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	segment := int(math.Floor(at / float64(s.SegmentSeconds)))
	if s.FailAt[segment] {
		return nil, ErrExtract
	}

	v := fingerprint.VariantNone
	if segment >= 0 && segment < len(s.Variants) {
		v = s.Variants[segment]
	}
	return Render(s.Width, s.Height, s.Regions, v, s.Strength, s.Background), nil
}

// Calls returns the number of ExtractFrame invocations.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MaxInFlight returns the peak number of concurrent ExtractFrame calls.
func (s *Source) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Render draws a flat frame with the watermark of variant v. VariantNone
// draws no watermark.
func Render(width, height int, regions []geometry.Region, v fingerprint.Variant, strength float64, background uint8) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{R: background, G: background, B: background, A: 255})
	if v == fingerprint.VariantNone {
		return img
	}

	for _, r := range regions {
		delta := strength
		if r.ShadeFor(v) == geometry.ShadeDark {
			delta = -strength
		}
		level := uint8(math.Max(0, math.Min(255, float64(background)+delta)))
		fill := &image.Uniform{C: color.NRGBA{R: level, G: level, B: level, A: 255}}
		draw.Draw(img, r.Rect(width, height), fill, image.Point{}, draw.Src)
	}
	return img
}
