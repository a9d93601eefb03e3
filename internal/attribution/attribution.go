package attribution

import (
	"context"
	"errors"
	"fmt"

	"media-forensics/internal/analyzer"
	"media-forensics/internal/database"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/geometry"
	"media-forensics/internal/logging"
	"media-forensics/internal/matcher"
	"media-forensics/internal/metrics"
)

var ErrInvalidRequest = errors.New("invalid attribution request")

// IdentityStore lists the identities issued for a media item.
type IdentityStore interface {
	ListFingerprints(ctx context.Context, mediaID int64) ([]database.FingerprintRecord, error)
}

// Options holds request defaults and bounds.
type Options struct {
	MaxSamples int
	SampleCap  int
	MaxOffset  int
	OffsetCap  int
}

// DefaultOptions returns 60 samples, a cap of 200, a 30 segment window and
// an offset cap of 300.
func DefaultOptions() Options {
	return Options{MaxSamples: 60, SampleCap: 200, MaxOffset: 30, OffsetCap: 300}
}

// Request is one attribution run. Zero MaxSamples uses the default; a nil
// MaxOffset uses the default window.
type Request struct {
	MediaID    int64
	Path       string
	Layout     geometry.Layout
	MaxSamples int
	MaxOffset  *int
	AutoExtend bool
}

// Service runs analysis and matching for leaked copies.
type Service struct {
	analyzer *analyzer.Analyzer
	matcher  *matcher.Matcher
	store    IdentityStore
	opts     Options
}

// New creates a Service.
func New(a *analyzer.Analyzer, m *matcher.Matcher, store IdentityStore, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = defaults.MaxSamples
	}
	if opts.SampleCap <= 0 {
		opts.SampleCap = defaults.SampleCap
	}
	if opts.OffsetCap <= 0 {
		opts.OffsetCap = defaults.OffsetCap
	}
	opts.OffsetCap = min(opts.OffsetCap, matcher.MaxOffsetCap)
	if opts.MaxOffset < 0 {
		opts.MaxOffset = defaults.MaxOffset
	}
	opts.MaxOffset = min(opts.MaxOffset, opts.OffsetCap)
	return &Service{analyzer: a, matcher: m, store: store, opts: opts}
}

type attempt struct {
	result     *analyzer.Result
	candidates []matcher.Candidate
}

func (a attempt) strength() float64 {
	return matcher.Strength(a.result.Meta.UsableSamples, a.candidates)
}

// Attribute analyzes the file at req.Path and ranks the media's known
// identities against what it observed.
func (s *Service) Attribute(ctx context.Context, req Request) (*Report, error) {
	maxSamples := req.MaxSamples
	if maxSamples <= 0 {
		maxSamples = s.opts.MaxSamples
	}
	maxSamples = min(maxSamples, s.opts.SampleCap)

	maxOffset := s.opts.MaxOffset
	if req.MaxOffset != nil {
		maxOffset = *req.MaxOffset
	}
	if maxOffset < 0 || maxOffset > s.opts.OffsetCap {
		return nil, fmt.Errorf("%w: max offset %d outside 0..%d", ErrInvalidRequest, maxOffset, s.opts.OffsetCap)
	}

	records, err := s.store.ListFingerprints(ctx, req.MediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}
	known := knownFrom(records)

	run := func(samples int) (attempt, error) {
		res, err := s.analyzer.Analyze(ctx, analyzer.Request{
			MediaID:    req.MediaID,
			Path:       req.Path,
			Layout:     req.Layout,
			MaxSamples: samples,
		})
		if err != nil {
			return attempt{}, err
		}
		candidates, err := s.matcher.Match(req.MediaID, res.Variants(), known, maxOffset)
		if err != nil {
			return attempt{}, err
		}
		return attempt{result: res, candidates: candidates}, nil
	}

	best, err := run(maxSamples)
	if err != nil {
		return nil, err
	}
	attempts := 1

	weak := matcher.WeakSignal(best.result.Meta.UsableSamples, best.candidates)
	canGrow := best.result.Meta.Samples == maxSamples && maxSamples < s.opts.SampleCap
	if req.AutoExtend && weak && canGrow {
		extended := min(maxSamples*2, s.opts.SampleCap)
		logging.Info("Weak signal for media %d (%d usable); retrying with %d samples",
			req.MediaID, best.result.Meta.UsableSamples, extended)
		metrics.AnalysisAutoExtendTotal.Inc()

		second, err := run(extended)
		if err != nil {
			logging.Warn("Extended analysis failed, keeping first attempt: %v", err)
		} else {
			attempts++
			if second.strength() > best.strength() {
				best = second
			}
			weak = matcher.WeakSignal(best.result.Meta.UsableSamples, best.candidates)
		}
	}

	if len(best.candidates) > 0 {
		metrics.AnalysisTopMatchRatio.Observe(best.candidates[0].MatchRatio)
	}

	return newReport(best.result, best.candidates, maxOffset, len(known), weak, attempts), nil
}

// knownFrom converts store records, skipping malformed identities.
func knownFrom(records []database.FingerprintRecord) []matcher.Known {
	known := make([]matcher.Known, 0, len(records))
	for _, r := range records {
		id, err := fingerprint.ParseIdentity(r.Identity)
		if err != nil {
			logging.Warn("Skipping stored identity for user %d media %d: %v", r.UserID, r.MediaID, err)
			continue
		}
		known = append(known, matcher.Known{Identity: id, UserID: r.UserID})
	}
	return known
}
