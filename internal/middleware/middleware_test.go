package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"media-forensics/internal/logging"
)

func TestStatusRecorderDefaults(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())

	if rec.status != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rec.status)
	}
	if rec.size != 0 {
		t.Errorf("Expected size to be 0, got %d", rec.size)
	}
	if rec.wroteHeader {
		t.Error("Expected wroteHeader to be false initially")
	}
}

func TestStatusRecorderWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)

	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)

	if rec.status != http.StatusNotFound {
		t.Errorf("Expected status code 404 to stick, got %d", rec.status)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected underlying writer to see 404, got %d", w.Code)
	}
}

func TestStatusRecorderWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)

	data := []byte("#EXTM3U\n")
	n, err := rec.Write(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(data) || rec.size != int64(len(data)) {
		t.Errorf("Expected %d bytes recorded, got n=%d size=%d", len(data), n, rec.size)
	}
	if !rec.wroteHeader {
		t.Error("Expected wroteHeader to be true after Write")
	}

	rec.Flush()
	if !w.Flushed {
		t.Error("Expected Flush to reach the underlying writer")
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	config := DefaultLoggingConfig()

	if config.LogSegments {
		t.Error("Expected LogSegments to be false by default")
	}
	if !config.LogHealthChecks {
		t.Error("Expected LogHealthChecks to be true by default")
	}
	if config.SkipPaths == nil {
		t.Error("Expected SkipPaths to be initialized")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"api request", "/api/forensics/1/analyze", DefaultLoggingConfig(), false},
		{"segment skipped by default", "/api/media/1/segments/3.ts", DefaultLoggingConfig(), true},
		{"segment logged when enabled", "/api/media/1/segments/3.ts", LoggingConfig{LogSegments: true}, false},
		{"health logged by default", "/health", DefaultLoggingConfig(), false},
		{"health skipped when disabled", "/healthz", LoggingConfig{}, true},
		{"explicit prefix", "/internal/debug", LoggingConfig{SkipPaths: []string{"/internal"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoggerMiddleware(t *testing.T) {
	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("body"))
	}))

	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stderr)

	req := httptest.NewRequest(http.MethodGet, "/api/media/1/playlist.m3u8?user=7", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	line := buf.String()
	for _, want := range []string{"status=418", "viewer=7", "method=GET", "request rejected"} {
		if !strings.Contains(line, want) {
			t.Errorf("access log missing %q: %s", want, line)
		}
	}

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", rec.Code)
	}
	if rec.Body.String() != "body" {
		t.Errorf("Expected body to pass through, got %q", rec.Body.String())
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := map[string]string{
		"plain":              "plain",
		"line\nforged":       "line forged",
		"cr\rlf":             "cr lf",
		"null\x00byte":       "nullbyte",
		"\x1b[31mred\x1b[0m": "[31mred[0m",
		"tab\tkept":          "tab\tkept",
		"del\x7fchar":        "delchar",
	}
	for in, want := range tests {
		if got := sanitizeLogField(in); got != want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.9"},
		{"single forwarded", map[string]string{"X-Forwarded-For": " 203.0.113.10 "}, "10.0.0.2:5000", "203.0.113.10"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:43210", "192.0.2.1"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.7", "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccessFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/media/4/playlist.m3u8?user=12", nil)
	req.RemoteAddr = "192.0.2.8:1234"
	req.Header.Set("User-Agent", "player\n/1.0")

	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)
	rec.Header().Set("Content-Encoding", "gzip")
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.Write([]byte("abc"))

	fields := accessFields(req, rec, 1500*time.Millisecond)

	want := map[string]interface{}{
		"client":      "192.0.2.8",
		"method":      "GET",
		"path":        "/api/media/4/playlist.m3u8",
		"query":       "user=12",
		"viewer":      "12",
		"status":      http.StatusOK,
		"bytes":       int64(3),
		"duration_ms": int64(1500),
		"encoding":    "gzip",
		"user_agent":  "player /1.0",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v (%T), want %v (%T)", k, fields[k], fields[k], v, v)
		}
	}
}

func TestAccessFieldsViewerHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(viewerHeader, "99")

	fields := accessFields(req, newStatusRecorder(httptest.NewRecorder()), 0)
	if fields["viewer"] != "99" {
		t.Errorf("viewer = %v, want 99", fields["viewer"])
	}
	for _, k := range []string{"query", "encoding", "user_agent"} {
		if _, ok := fields[k]; ok {
			t.Errorf("field %s should be omitted when empty", k)
		}
	}
}

func compressionHandler(contentType string, body []byte) http.Handler {
	return Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
}

func TestCompressionMiddleware(t *testing.T) {
	large := bytes.Repeat([]byte("#EXTINF:6.0,\nsegments/00001.ts\n"), 100)

	t.Run("compresses large playlist", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/media/1/playlist.m3u8", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		compressionHandler("application/vnd.apple.mpegurl", large).ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "gzip" {
			t.Fatalf("Expected gzip encoding, got %q", rec.Header().Get("Content-Encoding"))
		}
		zr, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatalf("gzip.NewReader: %v", err)
		}
		got, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !bytes.Equal(got, large) {
			t.Error("Decompressed body does not match")
		}
	})

	t.Run("small body passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/forensics/1/analyze", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		compressionHandler("application/json", []byte(`{"ok":true}`)).ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "" {
			t.Error("Expected no compression for small body")
		}
		if rec.Body.String() != `{"ok":true}` {
			t.Errorf("Unexpected body %q", rec.Body.String())
		}
	})

	t.Run("segments are never compressed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/media/1/segments/4.ts", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		compressionHandler("application/json", large).ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "" {
			t.Error("Expected segment to bypass compression")
		}
		if rec.Body.Len() != len(large) {
			t.Errorf("Expected %d bytes, got %d", len(large), rec.Body.Len())
		}
	})

	t.Run("client without gzip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/media/1/playlist.m3u8", nil)
		rec := httptest.NewRecorder()
		compressionHandler("application/vnd.apple.mpegurl", large).ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "" {
			t.Error("Expected no compression without Accept-Encoding")
		}
	})

	t.Run("incompressible type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/download", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		compressionHandler("video/mp2t", large).ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "" {
			t.Error("Expected no compression for video content")
		}
	})
}

func TestCompressionPreservesStatus(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat(`{"error":"bad"}`, 200)))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/forensics/1/analyze", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/media/42/playlist.m3u8", "/api/media/{id}/playlist.m3u8"},
		{"/api/media/42/segments/17.ts", "/api/media/{id}/segments/{index}.ts"},
		{"/api/forensics/9/analyze", "/api/forensics/{id}/analyze"},
		{"/api/media/abc/segments/x.ts", "/api/media/abc/segments/x.ts"},
		{"/", "/"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddlewareStatusCode(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/media/1/segments/99.ts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	called := false
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/metrics", "/health", "/livez"} {
		called = false
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if !called {
			t.Errorf("Expected handler to be called for %s", path)
		}
	}
}

func TestMetricsResponseWriterWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newMetricsResponseWriter(rec)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default 200, got %d", rw.statusCode)
	}
	rw.WriteHeader(http.StatusCreated)
	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("Expected 201 recorded, got %d / %d", rw.statusCode, rec.Code)
	}
}

func TestLoggerDoesNotDelayResponse(t *testing.T) {
	handler := Logger(LoggingConfig{LogSegments: true})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("segment"))
	}))

	start := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/1/segments/0.ts", nil))
	if time.Since(start) > time.Second {
		t.Error("Logger took too long")
	}
	if rec.Body.String() != "segment" {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}
