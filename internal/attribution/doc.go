// Package attribution answers "whose copy is this?" for a leaked file.
//
// It runs the analyzer, scores the observed sequence against every identity
// issued for the media, and returns a Report. When AutoExtend is set and the
// first pass is weak (few usable samples, low top ratio or a narrow lead) it
// re-runs with twice the samples, bounded by the sample cap, and keeps the
// stronger attempt.
package attribution
