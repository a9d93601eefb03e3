package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-forensics/internal/filesystem"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/logging"
	"media-forensics/internal/mediatypes"
	"media-forensics/internal/metrics"
	"media-forensics/internal/playlist"
	"media-forensics/internal/transcoder"
	"media-forensics/internal/workers"

	"github.com/google/uuid"
)

var (
	ErrInvalidMediaID = errors.New("media id must be positive")
	ErrSourceMissing  = errors.New("source video not found")
)

// Encoder is the video tooling the packager needs.
type Encoder interface {
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
	Compose(ctx context.Context, p transcoder.ComposeParams) error
}

// Options configures rendition output.
type Options struct {
	Enabled        bool
	Layout         geometry.Layout
	Opacity        float64
	SegmentSeconds int
	CRF            int
	Preset         string
	AudioBitrateK  int
}

// DefaultOptions returns forensic packaging with layout v2 at 0.6% opacity.
func DefaultOptions() Options {
	return Options{
		Enabled:        true,
		Layout:         geometry.LayoutV2,
		Opacity:        0.006,
		SegmentSeconds: 6,
		CRF:            20,
		Preset:         "veryfast",
		AudioBitrateK:  128,
	}
}

// RenditionSet is a published set of renditions for one media item.
type RenditionSet struct {
	MediaID  int64
	Dir      string
	Manifest *Manifest
}

// Packager produces and publishes rendition sets.
type Packager struct {
	encoder  Encoder
	geometry *geometry.Generator
	library  *Library
	slots    *workers.Semaphore
	opts     Options

	active   map[string]struct{}
	activeMu sync.Mutex
}

// New creates a Packager. geom may be nil only when opts.Enabled is false.
// slots is the process-wide transcode capacity shared with other packagers;
// its capacity also sets the number of slot locks shared across processes.
func New(encoder Encoder, geom *geometry.Generator, library *Library, slots *workers.Semaphore, opts Options) (*Packager, error) {
	if encoder == nil || library == nil {
		return nil, errors.New("packager requires an encoder and a library")
	}
	if opts.Enabled && geom == nil {
		return nil, errors.New("forensic packaging requires a geometry generator")
	}
	if opts.Enabled {
		if _, err := geometry.ParseLayout(string(opts.Layout)); err != nil {
			return nil, err
		}
	}
	if slots == nil {
		slots = workers.NewSemaphore(1)
	}

	return &Packager{
		encoder:  encoder,
		geometry: geom,
		library:  library,
		slots:    slots,
		opts:     opts,
		active:   make(map[string]struct{}),
	}, nil
}

// Library returns the store the packager publishes into.
func (p *Packager) Library() *Library {
	return p.library
}

// Package builds and publishes the rendition set for a media item. An empty
// layout uses the configured default. On failure the previous published set,
// if any, is left untouched.
func (p *Packager) Package(ctx context.Context, mediaID int64, source string, layout geometry.Layout) (*RenditionSet, error) {
	if mediaID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMediaID, mediaID)
	}
	if layout == "" {
		layout = p.opts.Layout
	}
	mode := "legacy"
	if p.opts.Enabled {
		mode = "forensic"
		var err error
		if layout, err = geometry.ParseLayout(string(layout)); err != nil {
			return nil, err
		}
	}
	if info, err := os.Stat(source); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, source)
	}
	if !mediatypes.IsVideo(source) {
		logging.Warn("Source %s has no known video extension; probing anyway", source)
	}

	if err := os.MkdirAll(p.library.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rendition root: %w", err)
	}

	if !p.slots.Acquire(ctx.Done()) {
		return nil, ctx.Err()
	}
	defer p.slots.Release()
	slot, err := p.library.acquireSlot(ctx, p.slots.Capacity())
	if err != nil {
		return nil, err
	}
	defer unlock(slot)
	metrics.PackageInProgress.Inc()
	defer metrics.PackageInProgress.Dec()

	mediaLock, err := p.library.lockMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	set, err := p.build(ctx, mediaID, source, layout)
	unlock(mediaLock)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.PackageRunsTotal.WithLabelValues(mode, status).Inc()
	metrics.PackageDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Error("Packaging media %d failed: %v", mediaID, err)
		return nil, err
	}

	logging.Info("Published %s rendition set for media %d (%d segments) in %v",
		mode, mediaID, set.Manifest.Segments, time.Since(start).Round(time.Millisecond))

	if _, err := p.CollectGarbage(time.Now()); err != nil {
		logging.Warn("Rendition garbage collection failed: %v", err)
	}
	return set, nil
}

func (p *Packager) build(ctx context.Context, mediaID int64, source string, layout geometry.Layout) (*RenditionSet, error) {
	runID := uuid.NewString()
	tmpName := fmt.Sprintf("%s%d-%s", tmpPrefix, mediaID, runID)
	tmpDir := filepath.Join(p.library.Root(), tmpName)
	if err := os.Mkdir(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	p.markActive(tmpName, true)
	defer p.markActive(tmpName, false)

	published := false
	defer func() {
		if !published {
			if err := filesystem.RemoveAllWithRetry(tmpDir, filesystem.DefaultRetryConfig()); err != nil {
				logging.Warn("failed to purge build directory %s: %v", tmpDir, err)
			}
		}
	}()

	info, err := p.encoder.Probe(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", source, err)
	}

	manifest := &Manifest{
		MediaID:         mediaID,
		Fingerprinting:  p.opts.Enabled,
		SegmentSeconds:  p.opts.SegmentSeconds,
		Width:           info.Width,
		Height:          info.Height,
		DurationSeconds: info.Duration,
		RunID:           runID,
		CreatedAt:       time.Now().UTC(),
	}

	if p.opts.Enabled {
		manifest.Layout = layout
		manifest.Opacity = p.opts.Opacity
		regions, err := p.geometry.RegionsFor(mediaID, layout)
		if err != nil {
			return nil, err
		}
		for _, v := range []fingerprint.Variant{fingerprint.VariantA, fingerprint.VariantB} {
			params := p.composeParams(source, filepath.Join(tmpDir, v.Dir()), info)
			params.Overlays = overlaysFor(regions, v, info.Width, info.Height, p.opts.Opacity)
			if err := p.encoder.Compose(ctx, params); err != nil {
				return nil, fmt.Errorf("compose variant %s: %w", v, err)
			}
			manifest.Variants = append(manifest.Variants, v.Dir())
		}
	} else {
		params := p.composeParams(source, filepath.Join(tmpDir, LegacyVariant), info)
		if err := p.encoder.Compose(ctx, params); err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		manifest.Variants = []string{LegacyVariant}
	}

	segments, err := countSegments(tmpDir, manifest.Variants)
	if err != nil {
		return nil, err
	}
	manifest.Segments = segments

	if err := writeManifest(tmpDir, manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := writeCompleteMarker(tmpDir, runID); err != nil {
		return nil, fmt.Errorf("failed to write completion marker: %w", err)
	}

	if _, err := verify(tmpDir); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.library.publish(mediaID, tmpDir, time.Now()); err != nil {
		return nil, err
	}
	published = true

	return &RenditionSet{MediaID: mediaID, Dir: p.library.Dir(mediaID), Manifest: manifest}, nil
}

func (p *Packager) composeParams(source, outDir string, info *transcoder.VideoInfo) transcoder.ComposeParams {
	return transcoder.ComposeParams{
		Input:          source,
		OutputDir:      outDir,
		Width:          info.Width,
		Height:         info.Height,
		SegmentSeconds: p.opts.SegmentSeconds,
		CRF:            p.opts.CRF,
		Preset:         p.opts.Preset,
		AudioBitrateK:  p.opts.AudioBitrateK,
	}
}

// overlaysFor maps regions to the drawbox overlays of variant v.
func overlaysFor(regions []geometry.Region, v fingerprint.Variant, width, height int, opacity float64) []transcoder.Overlay {
	overlays := make([]transcoder.Overlay, 0, len(regions))
	for _, r := range regions {
		color := "white"
		if r.ShadeFor(v) == geometry.ShadeDark {
			color = "black"
		}
		overlays = append(overlays, transcoder.Overlay{
			Rect:    r.Rect(width, height),
			Color:   color,
			Opacity: opacity,
		})
	}
	return overlays
}

// countSegments parses every variant playlist and requires equal counts.
func countSegments(dir string, variants []string) (int, error) {
	count := -1
	for _, v := range variants {
		pl, err := playlist.ParseFile(filepath.Join(dir, v, transcoder.PlaylistName))
		if err != nil {
			return 0, fmt.Errorf("%w: variant %s: %w", ErrIncompleteBuild, v, err)
		}
		if count >= 0 && len(pl.Segments) != count {
			return 0, fmt.Errorf("%w: %d vs %d", ErrVariantMismatch, count, len(pl.Segments))
		}
		count = len(pl.Segments)
	}
	return count, nil
}

func (p *Packager) markActive(name string, on bool) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	if on {
		p.active[name] = struct{}{}
	} else {
		delete(p.active, name)
	}
}

func (p *Packager) isActive(name string) bool {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	_, ok := p.active[name]
	return ok
}

// CollectGarbage removes expired superseded sets and abandoned builds that
// are not in progress in this process.
func (p *Packager) CollectGarbage(now time.Time) (int, error) {
	removed, err := p.library.CollectGarbage(now, p.isActive)
	if removed > 0 {
		logging.Info("Rendition GC removed %d directories", removed)
	}
	return removed, err
}
