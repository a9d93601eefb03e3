package packager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-forensics/internal/filesystem"
	"media-forensics/internal/fingerprint"
	"media-forensics/internal/logging"
	"media-forensics/internal/metrics"
	"media-forensics/internal/playlist"
	"media-forensics/internal/transcoder"
)

const (
	tmpPrefix = ".tmp-"
	oldPrefix = ".old-"
)

// Library is the published rendition store rooted at one directory:
//
//	<root>/<media>/manifest.json
//	<root>/<media>/.complete
//	<root>/<media>/{a,b}/index.m3u8 (or main/ in legacy mode)
//	<root>/.tmp-<media>-<run>   in-flight builds
//	<root>/.old-<media>-<nanos> superseded sets awaiting GC
//	<root>/.lock-<media>        per-media build and publish lock
//	<root>/.slot-<n>            packaging slot locks
type Library struct {
	root         string
	retention    time.Duration
	buildTimeout time.Duration
	retry        filesystem.RetryConfig
}

// NewLibrary returns a Library rooted at root.
func NewLibrary(root string, retention time.Duration) *Library {
	return &Library{
		root:      root,
		retention: retention,
		retry:     filesystem.DefaultRetryConfig(),
	}
}

// SetBuildTimeout sets the minimum age before an unlocked build directory
// counts as abandoned. It should cover a full packaging run.
func (l *Library) SetBuildTimeout(d time.Duration) {
	l.buildTimeout = d
}

// Root returns the library directory.
func (l *Library) Root() string {
	return l.root
}

// Dir returns the published directory for a media item.
func (l *Library) Dir(mediaID int64) string {
	return filepath.Join(l.root, strconv.FormatInt(mediaID, 10))
}

// LoadManifest returns the manifest of the published set, or ErrNotPackaged.
func (l *Library) LoadManifest(mediaID int64) (*Manifest, error) {
	dir := l.Dir(mediaID)
	if _, err := filesystem.StatWithRetry(filepath.Join(dir, CompleteMarker), l.retry); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNotPackaged, mediaID)
		}
		return nil, err
	}

	m, err := ReadManifest(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNotPackaged, mediaID)
		}
		return nil, err
	}
	if m.MediaID != mediaID {
		return nil, fmt.Errorf("%w: manifest for media %d found under %d", ErrInvalidManifest, m.MediaID, mediaID)
	}
	return m, nil
}

// Playlist returns the primary variant playlist of the published set.
func (l *Library) Playlist(m *Manifest) (*playlist.MediaPlaylist, error) {
	return playlist.ParseFile(filepath.Join(l.Dir(m.MediaID), m.Variants[0], transcoder.PlaylistName))
}

// ResolveSegment returns the segment file a viewer with identity id receives
// at index, and the variant label it came from.
func (l *Library) ResolveSegment(m *Manifest, oracle *fingerprint.Oracle, id fingerprint.Identity, index int) (string, string, error) {
	if index < 0 || index >= m.Segments {
		return "", "", fmt.Errorf("%w: %d of %d", ErrSegmentOutOfRange, index, m.Segments)
	}

	variantDir := LegacyVariant
	label := "legacy"
	if m.Fingerprinting {
		if oracle == nil {
			return "", "", errors.New("fingerprinted set requires an oracle")
		}
		v, err := oracle.ExpectedBit(id, m.MediaID, index)
		if err != nil {
			return "", "", err
		}
		variantDir, label = v.Dir(), v.String()
	}

	path := filepath.Join(l.Dir(m.MediaID), variantDir, fmt.Sprintf(transcoder.SegmentPattern, index))
	metrics.SegmentRequestsTotal.WithLabelValues(label).Inc()
	return path, label, nil
}

// verify checks a build directory before it may be published.
func verify(dir string) (*Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteBuild, err)
	}

	playlists := 0
	for _, v := range m.Variants {
		if _, err := os.Stat(filepath.Join(dir, v, transcoder.PlaylistName)); err == nil {
			playlists++
		}
	}
	if playlists == 0 {
		return nil, fmt.Errorf("%w: no variant playlist", ErrIncompleteBuild)
	}

	if _, err := os.Stat(filepath.Join(dir, CompleteMarker)); err != nil {
		return nil, fmt.Errorf("%w: missing completion marker", ErrIncompleteBuild)
	}
	return m, nil
}

// publish moves a verified build into place. A previous set is renamed aside
// first and restored if the final rename fails.
func (l *Library) publish(mediaID int64, buildDir string, now time.Time) error {
	published := l.Dir(mediaID)

	var superseded string
	if _, err := filesystem.StatWithRetry(published, l.retry); err == nil {
		superseded = filepath.Join(l.root, fmt.Sprintf("%s%d-%d", oldPrefix, mediaID, now.UnixNano()))
		if err := filesystem.RenameWithRetry(published, superseded, l.retry); err != nil {
			return fmt.Errorf("failed to move previous rendition aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := filesystem.RenameWithRetry(buildDir, published, l.retry); err != nil {
		if superseded != "" {
			if restoreErr := filesystem.RenameWithRetry(superseded, published, l.retry); restoreErr != nil {
				return errors.Join(
					fmt.Errorf("failed to publish rendition: %w", err),
					fmt.Errorf("failed to restore previous rendition: %w", restoreErr),
				)
			}
		}
		return fmt.Errorf("failed to publish rendition: %w", err)
	}

	if superseded != "" {
		logging.Info("Rendition for media %d superseded; previous set kept at %s", mediaID, superseded)
	}
	return nil
}

// CollectGarbage restores orphaned superseded sets, then removes superseded
// sets older than the retention window and abandoned build directories. A
// build counts as abandoned when keep returns false for it, nobody holds its
// media lock and it is older than both the retention window and the build
// timeout. It returns the number of directories removed.
func (l *Library) CollectGarbage(now time.Time, keep func(name string) bool) (int, error) {
	if _, err := l.Recover(); err != nil {
		logging.Warn("Rendition recovery incomplete: %v", err)
	}

	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()

		var (
			expired bool
			mediaID int64
		)
		switch {
		case strings.HasPrefix(name, oldPrefix):
			if id, ok := mediaOf(name, oldPrefix); ok && !l.published(id) {
				// Only copy left; Recover could not take it back yet.
				continue
			}
			ts, ok := supersededAt(name)
			expired = !ok || now.Sub(ts) >= l.retention
		case strings.HasPrefix(name, tmpPrefix):
			if keep != nil && keep(name) {
				continue
			}
			info, err := e.Info()
			expired = err == nil && now.Sub(info.ModTime()) >= max(l.retention, l.buildTimeout)
			mediaID, _ = mediaOf(name, tmpPrefix)
		default:
			continue
		}
		if !expired {
			continue
		}

		if err := l.removeLeftover(name, mediaID); err != nil {
			errs = append(errs, err)
			continue
		}
		if l.exists(name) {
			continue
		}
		removed++
		metrics.RenditionGCRemovedTotal.Inc()
		logging.Debug("Removed rendition directory %s", name)
	}

	return removed, errors.Join(errs...)
}

// removeLeftover deletes a directory under the root. Builds of a known media
// item are only removed while their media lock can be taken.
func (l *Library) removeLeftover(name string, mediaID int64) error {
	if mediaID > 0 {
		fl := l.tryLockMedia(mediaID)
		if fl == nil {
			logging.Debug("Skipping %s: media %d is being packaged", name, mediaID)
			return nil
		}
		defer unlock(fl)
	}
	return filesystem.RemoveAllWithRetry(filepath.Join(l.root, name), l.retry)
}

// Recover moves the newest superseded set of a media item back into place
// when its published directory is missing, as left by a crash between the
// two renames of a publish. It returns the number of sets restored.
func (l *Library) Recover() (int, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	newest := make(map[int64]string)
	newestAt := make(map[int64]time.Time)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mediaID, ok := mediaOf(e.Name(), oldPrefix)
		if !ok {
			continue
		}
		ts, ok := supersededAt(e.Name())
		if !ok || l.published(mediaID) {
			continue
		}
		if prev, seen := newestAt[mediaID]; !seen || ts.After(prev) {
			newest[mediaID] = e.Name()
			newestAt[mediaID] = ts
		}
	}

	restored := 0
	var errs []error
	for mediaID, name := range newest {
		ok, err := l.restore(mediaID, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			restored++
		}
	}
	return restored, errors.Join(errs...)
}

func (l *Library) restore(mediaID int64, name string) (bool, error) {
	fl := l.tryLockMedia(mediaID)
	if fl == nil {
		// A publish holding the lock will put a set in place itself.
		return false, nil
	}
	defer unlock(fl)

	if l.published(mediaID) {
		return false, nil
	}
	if err := filesystem.RenameWithRetry(filepath.Join(l.root, name), l.Dir(mediaID), l.retry); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", name, err)
	}
	metrics.RenditionRecoveredTotal.Inc()
	logging.Warn("Restored rendition set for media %d from %s", mediaID, name)
	return true, nil
}

// published reports whether the media item has a published directory.
func (l *Library) published(mediaID int64) bool {
	_, err := filesystem.StatWithRetry(l.Dir(mediaID), l.retry)
	return err == nil
}

func (l *Library) exists(name string) bool {
	_, err := os.Stat(filepath.Join(l.root, name))
	return err == nil
}

// supersededAt parses the timestamp from a .old-<media>-<nanos> name.
func supersededAt(name string) (time.Time, bool) {
	rest := strings.TrimPrefix(name, oldPrefix)
	i := strings.LastIndexByte(rest, '-')
	if i < 0 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// Stats counts published sets by layout ("legacy" for unwatermarked sets)
// and their total size.
func (l *Library) Stats() (map[string]int, int64) {
	sets := make(map[string]int)
	var total int64

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return sets, 0
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(l.root, e.Name())
		m, err := ReadManifest(dir)
		if err != nil {
			continue
		}
		if m.Fingerprinting {
			sets[string(m.Layout)]++
		} else {
			sets["legacy"]++
		}
		if size, err := filesystem.DirSize(dir); err == nil {
			total += size
		}
	}
	return sets, total
}
