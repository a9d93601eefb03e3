package packager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-forensics/internal/filesystem"
	"media-forensics/internal/geometry"
)

const (
	ManifestName   = "manifest.json"
	CompleteMarker = ".complete"

	// LegacyVariant is the directory of the single unwatermarked rendition.
	LegacyVariant = "main"
)

var (
	ErrNotPackaged       = errors.New("media has no published rendition set")
	ErrInvalidManifest   = errors.New("invalid rendition manifest")
	ErrIncompleteBuild   = errors.New("rendition build incomplete")
	ErrVariantMismatch   = errors.New("variant segment counts differ")
	ErrSegmentOutOfRange = errors.New("segment index out of range")
)

// Manifest records how a rendition set was produced. Analysis reads the
// layout from here so historical media stay analyzable after the configured
// default changes.
type Manifest struct {
	MediaID         int64           `json:"media_id"`
	Fingerprinting  bool            `json:"fingerprinting"`
	Layout          geometry.Layout `json:"layout,omitempty"`
	Opacity         float64         `json:"opacity,omitempty"`
	SegmentSeconds  int             `json:"segment_seconds"`
	Segments        int             `json:"segments"`
	Variants        []string        `json:"variants"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	DurationSeconds float64         `json:"duration_seconds"`
	RunID           string          `json:"run_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate checks the fields a reader relies on.
func (m *Manifest) Validate() error {
	switch {
	case m.MediaID <= 0:
		return fmt.Errorf("%w: media id %d", ErrInvalidManifest, m.MediaID)
	case m.SegmentSeconds <= 0:
		return fmt.Errorf("%w: segment seconds %d", ErrInvalidManifest, m.SegmentSeconds)
	case len(m.Variants) == 0:
		return fmt.Errorf("%w: no variants", ErrInvalidManifest)
	}
	if m.Fingerprinting {
		if _, err := geometry.ParseLayout(string(m.Layout)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		if len(m.Variants) != 2 {
			return fmt.Errorf("%w: fingerprinted set needs 2 variants, has %d", ErrInvalidManifest, len(m.Variants))
		}
	}
	return nil
}

// ReadManifest loads and validates dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(filepath.Join(dir, ManifestName), data, 0o644)
}

func writeCompleteMarker(dir string, runID string) error {
	return filesystem.WriteFileAtomic(filepath.Join(dir, CompleteMarker), []byte(runID+"\n"), 0o644)
}
