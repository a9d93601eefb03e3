package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/logging"
	"media-forensics/internal/metrics"
	"media-forensics/internal/packager"
	"media-forensics/internal/transcoder"
	"media-forensics/internal/workers"

	"github.com/google/uuid"
)

// ConfidenceFloor is the minimum confidence for a sample to be classified.
const ConfidenceFloor = 0.005

var (
	ErrUnreadableCandidate = errors.New("candidate file is unreadable")
	ErrInvalidRequest      = errors.New("invalid analysis request")
)

// FrameSource is the video tooling the analyzer needs.
type FrameSource interface {
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
	ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error)
}

// ManifestLoader returns the packaging record for a media item.
type ManifestLoader interface {
	LoadManifest(mediaID int64) (*packager.Manifest, error)
}

// Gate delays frame extraction while resources are short.
type Gate interface {
	Wait(ctx context.Context) error
}

// Layout sources reported in Meta.LayoutSource.
const (
	LayoutFromManifest = "manifest"
	LayoutFromOverride = "override"
	LayoutFromDefault  = "default"
)

// Options are the analyzer defaults used when no manifest is available.
type Options struct {
	DefaultLayout  geometry.Layout
	SegmentSeconds int
	// Workers caps concurrent frame extractions per request (0 = auto).
	Workers int
	// Gate, if set, is waited on before each extraction.
	Gate Gate
}

// Analyzer recovers the observed A/B sequence from a candidate file.
type Analyzer struct {
	frames    FrameSource
	manifests ManifestLoader
	geometry  *geometry.Generator
	opts      Options
}

// New creates an Analyzer. manifests may be nil.
func New(frames FrameSource, manifests ManifestLoader, geom *geometry.Generator, opts Options) (*Analyzer, error) {
	if frames == nil || geom == nil {
		return nil, errors.New("analyzer requires a frame source and a geometry generator")
	}
	if _, err := geometry.ParseLayout(string(opts.DefaultLayout)); err != nil {
		return nil, err
	}
	if opts.SegmentSeconds <= 0 {
		return nil, fmt.Errorf("%w: segment seconds %d", ErrInvalidRequest, opts.SegmentSeconds)
	}
	if opts.Workers <= 0 {
		opts.Workers = workers.ForIO(8)
	}
	return &Analyzer{frames: frames, manifests: manifests, geometry: geom, opts: opts}, nil
}

// Request describes one analysis.
type Request struct {
	MediaID int64
	Path    string
	// Layout is used only when the media has no manifest record.
	Layout     geometry.Layout
	MaxSamples int
}

// Sample is one observed segment.
type Sample struct {
	Index      int                 `json:"index"`
	Timestamp  float64             `json:"timestamp"`
	Variant    fingerprint.Variant `json:"-"`
	Score      float64             `json:"score"`
	Confidence float64             `json:"confidence"`
	Failed     bool                `json:"failed,omitempty"`
}

// Usable reports whether the sample was classified.
func (s Sample) Usable() bool {
	return s.Variant != fingerprint.VariantNone
}

// Meta summarizes an analysis run.
type Meta struct {
	RunID           string          `json:"run_id"`
	MediaID         int64           `json:"media_id"`
	Layout          geometry.Layout `json:"layout"`
	LayoutSource    string          `json:"layout_source"`
	SegmentSeconds  int             `json:"segment_seconds"`
	DurationSeconds float64         `json:"duration_seconds"`
	Samples         int             `json:"samples"`
	UsableSamples   int             `json:"usable_samples"`
	FailedSamples   int             `json:"failed_samples"`
}

// Result is the observed sequence of one run. FailedSamples > 0 marks a
// degraded but still usable result.
type Result struct {
	Meta    Meta
	Samples []Sample
}

// Variants returns the observed variant per sample, VariantNone where the
// sample is unusable.
func (r *Result) Variants() []fingerprint.Variant {
	out := make([]fingerprint.Variant, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Variant
	}
	return out
}

// Observed renders the sequence as a string of A, B and ?.
func (r *Result) Observed() string {
	var b strings.Builder
	for _, s := range r.Samples {
		b.WriteString(s.Variant.String())
	}
	return b.String()
}

// Confidences returns the per-sample confidences.
func (r *Result) Confidences() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Confidence
	}
	return out
}

// ResolveLayout picks the geometry layout for a media item: the manifest
// record, then the override, then the configured default. An unknown
// override is rejected even when a manifest would take precedence.
func (a *Analyzer) ResolveLayout(mediaID int64, override geometry.Layout) (geometry.Layout, string, int, error) {
	if override != "" {
		var err error
		if override, err = geometry.ParseLayout(string(override)); err != nil {
			return "", "", 0, err
		}
	}

	if a.manifests != nil {
		m, err := a.manifests.LoadManifest(mediaID)
		switch {
		case err == nil && m.Fingerprinting:
			if override != "" && override != m.Layout {
				logging.Info("Ignoring layout override %s for media %d; packaged with %s", override, mediaID, m.Layout)
			}
			return m.Layout, LayoutFromManifest, m.SegmentSeconds, nil
		case err != nil && !errors.Is(err, packager.ErrNotPackaged):
			logging.Warn("Could not read manifest for media %d, falling back: %v", mediaID, err)
		}
	}

	if override != "" {
		return override, LayoutFromOverride, a.opts.SegmentSeconds, nil
	}
	return a.opts.DefaultLayout, LayoutFromDefault, a.opts.SegmentSeconds, nil
}

// Analyze samples the candidate at segment midpoints and classifies each
// frame. A failed probe is fatal; a failed extraction only marks that sample.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.MediaID <= 0 {
		return nil, fmt.Errorf("%w: media id %d", ErrInvalidRequest, req.MediaID)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("%w: candidate path is empty", ErrInvalidRequest)
	}
	if req.MaxSamples <= 0 {
		return nil, fmt.Errorf("%w: max samples %d", ErrInvalidRequest, req.MaxSamples)
	}

	layout, source, segSeconds, err := a.ResolveLayout(req.MediaID, req.Layout)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := a.run(ctx, req, layout, source, segSeconds)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.AnalysisRunsTotal.WithLabelValues(string(layout), status).Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	return result, err
}

func (a *Analyzer) run(ctx context.Context, req Request, layout geometry.Layout, source string, segSeconds int) (*Result, error) {
	info, err := a.frames.Probe(ctx, req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableCandidate, err)
	}

	regions, err := a.geometry.RegionsFor(req.MediaID, layout)
	if err != nil {
		return nil, err
	}

	count := int(math.Floor(info.Duration / float64(segSeconds)))
	count = max(0, min(count, req.MaxSamples))

	result := &Result{
		Meta: Meta{
			RunID:           uuid.NewString(),
			MediaID:         req.MediaID,
			Layout:          layout,
			LayoutSource:    source,
			SegmentSeconds:  segSeconds,
			DurationSeconds: info.Duration,
			Samples:         count,
		},
		Samples: make([]Sample, count),
	}
	if count == 0 {
		logging.Info("Candidate %s is shorter than one %ds segment; no samples", req.Path, segSeconds)
		return result, nil
	}

	if err := a.sample(ctx, req.Path, layout, regions, segSeconds, result.Samples); err != nil {
		return nil, err
	}

	for _, s := range result.Samples {
		switch {
		case s.Failed:
			result.Meta.FailedSamples++
			metrics.AnalysisSamplesTotal.WithLabelValues("failed").Inc()
		case s.Usable():
			result.Meta.UsableSamples++
			metrics.AnalysisSamplesTotal.WithLabelValues("usable").Inc()
		default:
			metrics.AnalysisSamplesTotal.WithLabelValues("null").Inc()
		}
	}

	logging.WithFields(map[string]interface{}{
		"run_id":  result.Meta.RunID,
		"media":   req.MediaID,
		"layout":  layout,
		"samples": count,
		"usable":  result.Meta.UsableSamples,
		"failed":  result.Meta.FailedSamples,
	}).Info("Candidate analyzed")

	return result, nil
}

// sample fills out[i] for every index using a bounded pool of extractors.
func (a *Analyzer) sample(ctx context.Context, path string, layout geometry.Layout, regions []geometry.Region, segSeconds int, out []Sample) error {
	numWorkers := min(a.opts.Workers, len(out))
	metrics.AnalysisWorkers.Set(float64(numWorkers))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = a.sampleAt(ctx, path, layout, regions, i, segSeconds)
				if out[i].Failed {
					failed.Add(1)
				}
			}
		}()
	}

enqueue:
	for i := range out {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break enqueue
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		logging.Warn("%d of %d frame extractions failed for %s", n, len(out), path)
	}
	return nil
}

func (a *Analyzer) sampleAt(ctx context.Context, path string, layout geometry.Layout, regions []geometry.Region, i, segSeconds int) Sample {
	s := Sample{Index: i, Timestamp: (float64(i) + 0.5) * float64(segSeconds)}

	if a.opts.Gate != nil {
		if err := a.opts.Gate.Wait(ctx); err != nil {
			s.Failed = true
			return s
		}
	}

	img, err := a.frames.ExtractFrame(ctx, path, s.Timestamp)
	if err != nil {
		logging.Debug("Sample %d at %.2fs failed: %v", i, s.Timestamp, err)
		s.Failed = true
		return s
	}

	s.Variant, s.Score, s.Confidence = classify(img, layout, regions, ConfidenceFloor)
	return s
}
