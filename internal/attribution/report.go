package attribution

import (
	"media-forensics/internal/analyzer"
	"media-forensics/internal/geometry"
	"media-forensics/internal/matcher"
)

// Report is the result payload of an attribution run.
type Report struct {
	Meta       Meta                `json:"meta"`
	Observed   Observed            `json:"observed"`
	Candidates []matcher.Candidate `json:"candidates"`
}

// Meta describes how the report was produced.
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
	MaxOffset       int             `json:"max_offset"`
	KnownIdentities int             `json:"known_identities"`
	WeakSignal      bool            `json:"weak_signal"`
	Attempts        int             `json:"attempts"`
}

// Observed is the recovered sequence; Variants uses A, B and ? per sample.
type Observed struct {
	Variants    string    `json:"variants"`
	Confidences []float64 `json:"confidences"`
}

func newReport(res *analyzer.Result, candidates []matcher.Candidate, maxOffset, known int, weak bool, attempts int) *Report {
	if candidates == nil {
		candidates = []matcher.Candidate{}
	}
	return &Report{
		Meta: Meta{
			RunID:           res.Meta.RunID,
			MediaID:         res.Meta.MediaID,
			Layout:          res.Meta.Layout,
			LayoutSource:    res.Meta.LayoutSource,
			SegmentSeconds:  res.Meta.SegmentSeconds,
			DurationSeconds: res.Meta.DurationSeconds,
			Samples:         res.Meta.Samples,
			UsableSamples:   res.Meta.UsableSamples,
			FailedSamples:   res.Meta.FailedSamples,
			MaxOffset:       maxOffset,
			KnownIdentities: known,
			WeakSignal:      weak,
			Attempts:        attempts,
		},
		Observed: Observed{
			Variants:    res.Observed(),
			Confidences: res.Confidences(),
		},
		Candidates: candidates,
	}
}

// Top returns the best candidate, if any.
func (r *Report) Top() (matcher.Candidate, bool) {
	if len(r.Candidates) == 0 {
		return matcher.Candidate{}, false
	}
	return r.Candidates[0], true
}
