// Package analyzer reconstructs the observed A/B sequence from a suspected
// leaked copy of a media item.
//
// Frames are extracted at segment midpoints, (i+0.5)*segment seconds, so
// mild timeline drift from re-encoding does not move a sample across a
// segment boundary. Each frame is scored against the watermark regions of
// the media's layout:
//
//   - v1: each tile's mean luma minus the ring around it
//   - v2: each pair's left box minus its right box
//
// The signed sum classifies the frame as A (>= 0) or B; confidence is
// |score| / (regions * 255) and anything under ConfidenceFloor is reported as
// unusable rather than guessed.
//
// The layout comes from the packaging manifest when one exists, so an
// override or a changed configuration default cannot break attribution of
// already published media.
package analyzer
