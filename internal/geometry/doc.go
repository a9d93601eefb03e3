// Package geometry places the watermark regions that carry the A/B signal.
//
// Placement is a pure function of the server secret, the media ID and the
// layout mode, so the analyzer can rebuild the exact geometry for any
// historical media item without stored artifacts. Two layouts share one
// keyed keystream:
//
//   - v1: six independent square tiles, each lighter (A) or darker (B)
//     than its surroundings.
//   - v2: three pairs of horizontally adjacent squares; A renders the left
//     box light and the right box dark, B the inverse. The signal is the
//     left/right difference, which is independent of scene brightness.
package geometry
