package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"media-forensics/internal/database"
	"media-forensics/internal/filesystem"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/logging"
	"media-forensics/internal/mediatypes"
	"media-forensics/internal/middleware"
	"media-forensics/internal/packager"
	"media-forensics/internal/streaming"
	"media-forensics/internal/telemetry"

	"github.com/gorilla/mux"
)

var (
	playlistContentType = mediatypes.MimeType(".m3u8")
	segmentContentType  = mediatypes.MimeType(".ts")
)

// Playlist returns the viewer's HLS playlist for a media item. The first
// request assigns the viewer's fingerprint identity; later requests reuse
// the stored one.
func (h *Handlers) Playlist(w http.ResponseWriter, r *http.Request) {
	mediaID, err := mediaIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID, err := userIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	manifest, ok := h.loadManifest(w, mediaID)
	if !ok {
		return
	}

	ctx := r.Context()
	ip := middleware.ClientIP(r)

	var identity fingerprint.Identity
	if manifest.Fingerprinting {
		identity, err = h.assignIdentity(ctx, userID, mediaID, ip)
		if err != nil {
			logging.Error("Failed to assign fingerprint for user %d media %d: %v", userID, mediaID, err)
			telemetry.CaptureError(err, map[string]string{"operation": "assign_fingerprint", "media_id": strconv.FormatInt(mediaID, 10)})
			writeJSONError(w, "Failed to assign fingerprint", http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.RecordSession(ctx, database.PlaybackSession{
		UserID:    userID,
		MediaID:   mediaID,
		Identity:  string(identity),
		IP:        ip,
		UserAgent: r.UserAgent(),
	}); err != nil {
		logging.Warn("Failed to record playback session for user %d media %d: %v", userID, mediaID, err)
	}

	pl, err := h.library.Playlist(manifest)
	if err != nil {
		logging.Error("Failed to read playlist for media %d: %v", mediaID, err)
		writeJSONError(w, "Failed to read playlist", http.StatusInternalServerError)
		return
	}

	personal := pl.WithURIs(func(index int) string {
		return fmt.Sprintf("segments/%d.ts?user=%d", index, userID)
	})

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	if err := personal.Write(w); err != nil {
		logging.Error("Failed to write playlist for media %d: %v", mediaID, err)
	}
}

// assignIdentity returns the stored identity for (user, media), issuing
// and storing one on first use. The assignment is refreshed either way.
func (h *Handlers) assignIdentity(ctx context.Context, userID, mediaID int64, ip string) (fingerprint.Identity, error) {
	if h.oracle == nil {
		return "", errors.New("forensic mode is disabled")
	}

	var identity fingerprint.Identity
	rec, err := h.db.GetFingerprint(ctx, userID, mediaID)
	switch {
	case err == nil:
		identity, err = fingerprint.ParseIdentity(rec.Identity)
		if err != nil {
			return "", fmt.Errorf("stored identity: %w", err)
		}
	case errors.Is(err, database.ErrNotFound):
		identity, err = h.oracle.IdentityFor(userID, mediaID)
		if err != nil {
			return "", err
		}
		logging.Info("Issued fingerprint for user %d media %d", userID, mediaID)
	default:
		return "", err
	}

	if err := h.db.AssignFingerprint(ctx, database.Assignment{
		UserID:   userID,
		MediaID:  mediaID,
		Identity: string(identity),
		IP:       ip,
	}); err != nil {
		return "", err
	}
	return identity, nil
}

// Segment serves one segment from the rendition the viewer's identity
// selects. Viewers must have requested the playlist first.
func (h *Handlers) Segment(w http.ResponseWriter, r *http.Request) {
	mediaID, err := mediaIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		writeJSONError(w, "invalid segment index", http.StatusBadRequest)
		return
	}
	userID, err := userIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	manifest, ok := h.loadManifest(w, mediaID)
	if !ok {
		return
	}

	var identity fingerprint.Identity
	if manifest.Fingerprinting {
		rec, err := h.db.GetFingerprint(r.Context(), userID, mediaID)
		if errors.Is(err, database.ErrNotFound) {
			writeJSONError(w, "no playback session for this viewer", http.StatusForbidden)
			return
		}
		if err != nil {
			logging.Error("Failed to load fingerprint for user %d media %d: %v", userID, mediaID, err)
			writeJSONError(w, "Failed to load fingerprint", http.StatusInternalServerError)
			return
		}
		identity = fingerprint.Identity(rec.Identity)
	}

	path, label, err := h.library.ResolveSegment(manifest, h.oracle, identity, index)
	if errors.Is(err, packager.ErrSegmentOutOfRange) {
		writeJSONError(w, "segment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to resolve segment %d of media %d: %v", index, mediaID, err)
		telemetry.CaptureError(err, map[string]string{"operation": "resolve_segment", "media_id": strconv.FormatInt(mediaID, 10)})
		writeJSONError(w, "Failed to resolve segment", http.StatusInternalServerError)
		return
	}

	if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Error("Segment file missing from published set: %s", path)
		}
		writeJSONError(w, "segment unavailable", http.StatusNotFound)
		return
	}
	logging.Debug("Serving segment %d of media %d to user %d from %s", index, mediaID, userID, label)

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if n, err := streaming.ServeSegment(r.Context(), w, path, streaming.DefaultConfig()); err != nil {
		if errors.Is(err, streaming.ErrClientGone) {
			logging.Debug("Viewer %d left during segment %d of media %d", userID, index, mediaID)
			return
		}
		logging.Warn("Segment %d of media %d to user %d stopped after %d bytes: %v", index, mediaID, userID, n, err)
	}
}

// loadManifest writes the error response itself and reports whether the
// caller may continue.
func (h *Handlers) loadManifest(w http.ResponseWriter, mediaID int64) (*packager.Manifest, bool) {
	manifest, err := h.library.LoadManifest(mediaID)
	if errors.Is(err, packager.ErrNotPackaged) {
		writeJSONError(w, "media is not packaged", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logging.Error("Failed to load manifest for media %d: %v", mediaID, err)
		writeJSONError(w, "Failed to load rendition set", http.StatusInternalServerError)
		return nil, false
	}
	return manifest, true
}
