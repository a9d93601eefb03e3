// Package filesystem provides filesystem operations with retry logic for
// network-mounted rendition storage.
//
// Rendition sets usually live on a network volume. Operations here retry on
// ESTALE (stale file handle) with exponential backoff and record retry
// metrics labeled by the volume the path belongs to. Any other error is
// returned immediately.
//
// WriteFileAtomic is used for manifests and completion markers so readers
// never observe a partially written file.
package filesystem
