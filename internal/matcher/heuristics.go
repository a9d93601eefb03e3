package matcher

// Weak-signal thresholds for the auto-extend heuristic.
const (
	MinUsableSamples = 12
	MinTopRatio      = 0.85
	MinRatioGap      = 0.15
)

// Gap returns the match ratio difference between the top two candidates.
// A single candidate's gap is its own ratio; no candidates yield 0.
func Gap(candidates []Candidate) float64 {
	switch len(candidates) {
	case 0:
		return 0
	case 1:
		return candidates[0].MatchRatio
	}
	return candidates[0].MatchRatio - candidates[1].MatchRatio
}

// WeakSignal reports whether a result is too weak to attribute with
// confidence: too few usable samples, a low top ratio, or a narrow lead.
func WeakSignal(usable int, candidates []Candidate) bool {
	if usable < MinUsableSamples || len(candidates) == 0 {
		return true
	}
	return candidates[0].MatchRatio < MinTopRatio || Gap(candidates) < MinRatioGap
}

// Strength combines top ratio, lead and sample count into the score used to
// choose between two attempts: ratio*100 + gap*40 + usable.
func Strength(usable int, candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return float64(usable)
	}
	return candidates[0].MatchRatio*100 + Gap(candidates)*40 + float64(usable)
}
