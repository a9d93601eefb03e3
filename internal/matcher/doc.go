// Package matcher ranks known fingerprint identities against an observed
// A/B sequence recovered from a leaked copy.
//
// The leak rarely starts at segment 0 of the canonical stream, so every
// identity is aligned at each offset in [0, maxOffset] and keeps its best
// alignment. Cost is linear in identities x offsets x samples; expected bits
// are computed once per identity for the whole window.
//
// WeakSignal and Strength implement the caller-side auto-extend policy.
package matcher
