package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the worker count.
const OverrideEnv = "ANALYZE_WORKERS"

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
//
// Can be overridden with the ANALYZE_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// Frame extraction spawns one decoder process per job, so this is what the
// analyzer uses.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Semaphore bounds concurrent access to a scarce resource such as
// transcoding capacity. The zero value is not usable; use NewSemaphore.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with n slots (minimum 1).
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or done is closed. It reports whether a
// slot was acquired.
func (s *Semaphore) Acquire(done <-chan struct{}) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-done:
		return false
	}
}

// Release frees a slot taken by Acquire.
func (s *Semaphore) Release() {
	<-s.slots
}

// Capacity returns the number of slots.
func (s *Semaphore) Capacity() int {
	return cap(s.slots)
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.slots)
}
