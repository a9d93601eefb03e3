package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"media-forensics/internal/logging"
	"media-forensics/internal/metrics"
)

var (
	// ErrWriteTimeout means a single write to the viewer did not complete in time.
	ErrWriteTimeout = errors.New("segment write timed out")

	// ErrClientGone means the request context ended before the segment was sent.
	ErrClientGone = errors.New("viewer disconnected")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("segment writer closed")
)

// Config bounds how long a viewer may stall a segment delivery.
type Config struct {
	// WriteTimeout is the maximum time for one chunk write.
	WriteTimeout time.Duration
	// IdleTimeout cancels the delivery when no chunk completes for this long.
	IdleTimeout time.Duration
	// ChunkSize splits writes; 0 writes whatever io.Copy hands over.
	ChunkSize int
}

// DefaultConfig returns limits sized for multi-second HLS segments.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// Writer is an http.ResponseWriter wrapper whose writes fail instead of
// blocking forever on a stalled viewer.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config

	mu        sync.Mutex
	lastWrite time.Time
	written   int64
	closed    bool
}

// NewWriter wraps w. The writer is canceled with ctx.
func NewWriter(ctx context.Context, w http.ResponseWriter, config Config) *Writer {
	ctx, cancel := context.WithCancel(ctx)
	sw := &Writer{
		w:         w,
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		lastWrite: time.Now(),
	}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	go sw.watchIdle()
	return sw
}

// Write implements io.Writer.
func (sw *Writer) Write(p []byte) (int, error) {
	sw.mu.Lock()
	closed := sw.closed
	sw.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	total := 0
	for len(p) > 0 {
		if err := sw.ctx.Err(); err != nil {
			return total, sw.contextError()
		}

		n := len(p)
		if sw.config.ChunkSize > 0 && n > sw.config.ChunkSize {
			n = sw.config.ChunkSize
		}
		written, err := sw.writeChunk(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]

		if sw.flusher != nil {
			sw.flusher.Flush()
		}
	}
	return total, nil
}

func (sw *Writer) writeChunk(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := sw.w.Write(p)
		done <- result{n, err}
	}()

	var timeout <-chan time.Time
	if sw.config.WriteTimeout > 0 {
		timer := time.NewTimer(sw.config.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		if r.err == nil {
			sw.mu.Lock()
			sw.lastWrite = time.Now()
			sw.written += int64(r.n)
			sw.mu.Unlock()
		}
		return r.n, r.err
	case <-timeout:
		sw.cancel()
		return 0, ErrWriteTimeout
	case <-sw.ctx.Done():
		return 0, sw.contextError()
	}
}

// watchIdle cancels the delivery when writes stop making progress.
func (sw *Writer) watchIdle() {
	if sw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(sw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.mu.Lock()
			idle := time.Since(sw.lastWrite)
			sw.mu.Unlock()

			if idle > sw.config.IdleTimeout {
				logging.Warn("Segment delivery idle for %v, canceling", idle.Round(time.Millisecond))
				sw.cancel()
				return
			}
		case <-sw.ctx.Done():
			return
		}
	}
}

func (sw *Writer) contextError() error {
	if errors.Is(sw.ctx.Err(), context.Canceled) {
		return ErrClientGone
	}
	return ErrWriteTimeout
}

// Close stops the idle watcher. Later writes fail with ErrClosed.
func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.closed {
		sw.closed = true
		sw.cancel()
	}
	return nil
}

// Written returns the number of bytes delivered so far.
func (sw *Writer) Written() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.written
}

// ServeSegment writes the file at path as a complete 200 response. Callers
// set Content-Type and caching headers beforehand. Errors returned after the
// header is written cannot be reported to the viewer.
func ServeSegment(ctx context.Context, w http.ResponseWriter, path string, config Config) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	sw := NewWriter(ctx, w, config)
	_, err = io.Copy(sw, f)
	_ = sw.Close()

	written := sw.Written()
	metrics.SegmentBytesServedTotal.Add(float64(written))

	switch {
	case err == nil:
	case errors.Is(err, ErrWriteTimeout):
		metrics.SegmentDeliveryAbortedTotal.WithLabelValues("timeout").Inc()
	case errors.Is(err, ErrClientGone):
		metrics.SegmentDeliveryAbortedTotal.WithLabelValues("client_gone").Inc()
	default:
		metrics.SegmentDeliveryAbortedTotal.WithLabelValues("error").Inc()
	}
	return written, err
}
