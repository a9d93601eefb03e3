package packager

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"media-forensics/internal/logging"
)

const (
	mediaLockPrefix = ".lock-"
	slotLockPrefix  = ".slot-"
	lockRetryDelay  = 250 * time.Millisecond
)

// Locks live as files in the library root so every process sharing the root
// (server, CLI runs, other hosts on the same volume) sees them. A media lock
// is held for a whole build and publish, and by GC while it touches that
// media's leftovers. Slot locks bound concurrent packaging across processes.

func (l *Library) mediaLock(mediaID int64) *flock.Flock {
	return flock.New(filepath.Join(l.root, mediaLockPrefix+strconv.FormatInt(mediaID, 10)))
}

// lockMedia blocks until the media lock is held or ctx is done.
func (l *Library) lockMedia(ctx context.Context, mediaID int64) (*flock.Flock, error) {
	fl := l.mediaLock(mediaID)
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to lock media %d: %w", mediaID, err)
	}
	if !ok {
		return nil, ctx.Err()
	}
	return fl, nil
}

// tryLockMedia takes the media lock without waiting. It returns nil when the
// lock is held elsewhere or cannot be taken.
func (l *Library) tryLockMedia(mediaID int64) *flock.Flock {
	fl := l.mediaLock(mediaID)
	ok, err := fl.TryLock()
	if err != nil {
		logging.Warn("Failed to check lock for media %d: %v", mediaID, err)
		return nil
	}
	if !ok {
		return nil
	}
	return fl
}

// acquireSlot takes one of n packaging slots shared by every process using
// the library root.
func (l *Library) acquireSlot(ctx context.Context, n int) (*flock.Flock, error) {
	n = max(n, 1)
	for {
		for i := 0; i < n; i++ {
			fl := flock.New(filepath.Join(l.root, slotLockPrefix+strconv.Itoa(i)))
			ok, err := fl.TryLock()
			if err != nil {
				return nil, fmt.Errorf("failed to take packaging slot: %w", err)
			}
			if ok {
				return fl, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func unlock(fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Unlock(); err != nil {
		logging.Warn("Failed to release %s: %v", fl.Path(), err)
	}
}

// mediaOf parses the media ID from a .tmp-<media>-<run> or
// .old-<media>-<nanos> directory name.
func mediaOf(name, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	id, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	mediaID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || mediaID <= 0 {
		return 0, false
	}
	return mediaID, true
}
