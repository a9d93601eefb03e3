// Package packager produces the A/B rendition sets that carry the forensic
// watermark and publishes them atomically.
//
// A packaging run holds one transcode slot for both variant passes and a
// per-media lock for the whole build and swap. Both are file locks in the
// library root (.slot-<n>, .lock-<media>), so the server and any number of
// CLI runs sharing the root serialize with each other. Output is built under
// <root>/.tmp-<media>-<run>, verified (manifest, at least one variant
// playlist, completion marker) and renamed into <root>/<media>. A previous
// set is renamed aside to <root>/.old-<media>-<nanos> rather than deleted and
// is removed by CollectGarbage once the retention window has passed. If a
// crash leaves a superseded set with no published set, Recover renames it back
// and GC never deletes it. GC also skips builds whose media lock is held.
//
// With fingerprinting disabled the same path produces a single unwatermarked
// rendition under main/.
//
// Library serves the read side: manifests for the analyzer and per-viewer
// segment resolution for playback.
package packager
