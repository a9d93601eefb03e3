package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"media-forensics/internal/analyzer"
	"media-forensics/internal/attribution"
	"media-forensics/internal/database"
	"media-forensics/internal/filesystem"
	"media-forensics/internal/geometry"
	"media-forensics/internal/logging"
	"media-forensics/internal/mediatypes"
	"media-forensics/internal/telemetry"
)

// maxAnalyzeBody bounds the analyze request body.
const maxAnalyzeBody = 64 * 1024

// AnalyzeRequest is the body of POST /api/forensics/{id}/analyze.
type AnalyzeRequest struct {
	Path       string `json:"path"`
	Layout     string `json:"layout,omitempty"`
	MaxSamples int    `json:"max_samples,omitempty"`
	MaxOffset  *int   `json:"max_offset,omitempty"`
	AutoExtend bool   `json:"auto_extend,omitempty"`
}

// Analyze attributes a leaked copy stored on the server to known viewers.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.attribution == nil {
		writeJSONError(w, "analysis is not available", http.StatusServiceUnavailable)
		return
	}

	mediaID, err := mediaIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Path == "" || !filepath.IsAbs(req.Path) {
		writeJSONError(w, "path must be an absolute path on the server", http.StatusBadRequest)
		return
	}
	info, err := filesystem.StatWithRetry(req.Path, filesystem.DefaultRetryConfig())
	if err != nil || !info.Mode().IsRegular() {
		writeJSONError(w, "candidate file not found", http.StatusNotFound)
		return
	}
	if !mediatypes.IsVideo(req.Path) {
		logging.Warn("Candidate %s has no known video extension; probing anyway", req.Path)
	}

	var layout geometry.Layout
	if req.Layout != "" {
		if layout, err = geometry.ParseLayout(req.Layout); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.MaxSamples < 0 {
		writeJSONError(w, "max_samples must not be negative", http.StatusBadRequest)
		return
	}

	report, err := h.attribution.Attribute(r.Context(), attribution.Request{
		MediaID:    mediaID,
		Path:       req.Path,
		Layout:     layout,
		MaxSamples: req.MaxSamples,
		MaxOffset:  req.MaxOffset,
		AutoExtend: req.AutoExtend,
	})
	switch {
	case err == nil:
	case errors.Is(err, attribution.ErrInvalidRequest), errors.Is(err, analyzer.ErrInvalidRequest):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, analyzer.ErrUnreadableCandidate):
		writeJSONError(w, "candidate file could not be read as video", http.StatusUnprocessableEntity)
		return
	default:
		logging.Error("Analysis of %s for media %d failed: %v", req.Path, mediaID, err)
		telemetry.CaptureError(err, map[string]string{"operation": "analyze", "media_id": strconv.FormatInt(mediaID, 10)})
		writeJSONError(w, "analysis failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, report)
}

// ListIdentities returns every fingerprint identity issued for a media item.
func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	mediaID, err := mediaIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.db.ListFingerprints(r.Context(), mediaID)
	if err != nil {
		logging.Error("Failed to list fingerprints for media %d: %v", mediaID, err)
		writeJSONError(w, "Failed to list identities", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.FingerprintRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, records)
}

// ListSessions returns recent playback sessions for a media item.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	mediaID, err := mediaIDFrom(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			writeJSONError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
	}

	sessions, err := h.db.ListSessions(r.Context(), mediaID, limit)
	if err != nil {
		logging.Error("Failed to list sessions for media %d: %v", mediaID, err)
		writeJSONError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []database.PlaybackSession{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sessions)
}
