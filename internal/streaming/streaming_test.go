package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingWriter blocks every Write until release is closed.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{header: make(http.Header), release: make(chan struct{})}
}

func (b *blockingWriter) Header() http.Header {
	return b.header
}

func (b *blockingWriter) WriteHeader(int) {}

func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

// countingWriter records how many Write calls it received.
type countingWriter struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.ResponseRecorder.Write(p)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		t.Errorf("timeouts must be positive: %+v", cfg)
	}
	if cfg.ChunkSize <= 0 {
		t.Errorf("ChunkSize = %d, want positive", cfg.ChunkSize)
	}
}

func TestWriterChunks(t *testing.T) {
	rec := &countingWriter{ResponseRecorder: httptest.NewRecorder()}
	sw := NewWriter(context.Background(), rec, Config{WriteTimeout: time.Second, ChunkSize: 4})
	defer sw.Close()

	payload := []byte("0123456789")
	n, err := sw.Write(payload)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(payload) {
		t.Errorf("Write() = %d, want %d", n, len(payload))
	}
	if rec.writes != 3 {
		t.Errorf("underlying writes = %d, want 3", rec.writes)
	}
	if got := rec.Body.String(); got != string(payload) {
		t.Errorf("body = %q, want %q", got, payload)
	}
	if sw.Written() != int64(len(payload)) {
		t.Errorf("Written() = %d, want %d", sw.Written(), len(payload))
	}
	if !rec.Flushed {
		t.Error("expected the writer to flush between chunks")
	}
}

func TestWriterTimeout(t *testing.T) {
	bw := newBlockingWriter()
	defer close(bw.release)

	sw := NewWriter(context.Background(), bw, Config{WriteTimeout: 20 * time.Millisecond})
	defer sw.Close()

	start := time.Now()
	_, err := sw.Write([]byte("stalled"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Write() error = %v, want ErrWriteTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Write() took %v, expected to time out quickly", elapsed)
	}

	// The delivery is canceled after a timeout.
	if _, err := sw.Write([]byte("more")); err == nil {
		t.Error("Write() after timeout should fail")
	}
}

func TestWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewWriter(ctx, httptest.NewRecorder(), Config{WriteTimeout: time.Second})
	defer sw.Close()

	cancel()
	if _, err := sw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Write() error = %v, want ErrClientGone", err)
	}
}

func TestWriterIdleTimeout(t *testing.T) {
	sw := NewWriter(context.Background(), httptest.NewRecorder(), Config{IdleTimeout: 40 * time.Millisecond})
	defer sw.Close()

	deadline := time.After(2 * time.Second)
	for sw.ctx.Err() == nil {
		select {
		case <-deadline:
			t.Fatal("idle watcher did not cancel the writer")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if _, err := sw.Write([]byte("late")); err == nil {
		t.Error("Write() after idle cancel should fail")
	}
}

func TestWriterClose(t *testing.T) {
	sw := NewWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err := sw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := sw.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestServeSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment_00003.ts")
	body := bytes.Repeat([]byte{0x47}, 188*10)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "video/mp2t")
	n, err := ServeSegment(context.Background(), rec, path, Config{WriteTimeout: time.Second, ChunkSize: 512})
	if err != nil {
		t.Fatalf("ServeSegment() error = %v", err)
	}
	if n != int64(len(body)) {
		t.Errorf("ServeSegment() = %d bytes, want %d", n, len(body))
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "1880" {
		t.Errorf("Content-Length = %q, want 1880", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("Content-Type = %q, want video/mp2t", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), body) {
		t.Error("body does not match segment file")
	}
}

func TestServeSegmentErrors(t *testing.T) {
	dir := t.TempDir()

	rec := httptest.NewRecorder()
	if _, err := ServeSegment(context.Background(), rec, filepath.Join(dir, "missing.ts"), DefaultConfig()); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v, want not-exist", err)
	}

	rec = httptest.NewRecorder()
	_, err := ServeSegment(context.Background(), rec, dir, DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "not a regular file") {
		t.Errorf("directory error = %v, want not a regular file", err)
	}
	if rec.Body.Len() != 0 {
		t.Error("nothing should be written when the segment cannot be opened")
	}
}
