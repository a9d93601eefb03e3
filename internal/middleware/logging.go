package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"media-forensics/internal/logging"
)

// statusRecorder captures the status code and body size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	n, err := sr.ResponseWriter.Write(b)
	sr.size += int64(n)
	return n, err
}

// Flush keeps segment delivery able to push chunks through the wrapper.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	SkipPaths []string
	// LogSegments logs every .ts segment request; playback produces one
	// per segment per viewer.
	LogSegments     bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs everything except segment requests.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{},
		LogSegments:     false,
		LogHealthChecks: true,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// viewerHeader mirrors handlers.UserHeader without importing handlers.
const viewerHeader = "X-User-ID"

// Logger returns middleware that writes one structured access log entry per
// request. Client errors log at warn level and server errors at error level.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			logAccess(r, rec, time.Since(start))
		})
	}
}

// accessFields builds the log fields for a finished request. Every value
// taken from the request is passed through sanitizeLogField.
func accessFields(r *http.Request, rec *statusRecorder, took time.Duration) map[string]interface{} {
	fields := map[string]interface{}{
		"client":      sanitizeLogField(ClientIP(r)),
		"method":      sanitizeLogField(r.Method),
		"path":        sanitizeLogField(r.URL.Path),
		"status":      rec.status,
		"bytes":       rec.size,
		"duration_ms": took.Milliseconds(),
	}
	if q := r.URL.RawQuery; q != "" {
		fields["query"] = sanitizeLogField(q)
	}
	if viewer := viewerOf(r); viewer != "" {
		fields["viewer"] = sanitizeLogField(viewer)
	}
	if enc := rec.Header().Get("Content-Encoding"); enc != "" {
		fields["encoding"] = enc
	}
	if ua := r.UserAgent(); ua != "" {
		fields["user_agent"] = sanitizeLogField(ua)
	}
	return fields
}

func logAccess(r *http.Request, rec *statusRecorder, took time.Duration) {
	entry := logging.WithFields(accessFields(r, rec, took))
	switch {
	case rec.status >= http.StatusInternalServerError:
		entry.Error("request failed")
	case rec.status >= http.StatusBadRequest:
		entry.Warn("request rejected")
	default:
		entry.Info("request")
	}
}

// viewerOf returns the viewer ID the request claims, if any.
func viewerOf(r *http.Request) string {
	if v := r.Header.Get(viewerHeader); v != "" {
		return v
	}
	return r.URL.Query().Get("user")
}

// sanitizeLogField removes control characters that could be used for log
// injection. Newlines become spaces; other control characters except tab
// are dropped.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}
	return !config.LogSegments && strings.HasSuffix(path, ".ts")
}

// ClientIP returns the originating client address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
