package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-forensics/internal/database"
	"media-forensics/internal/handlers"
	"media-forensics/internal/metrics"
	"media-forensics/internal/packager"
	"media-forensics/internal/startup"
)

func newTestHandlers(t *testing.T) (*handlers.Handlers, *database.Database, *packager.Library) {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(context.Background(), database.Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	library := packager.NewLibrary(filepath.Join(dir, "renditions"), time.Hour)
	return handlers.New(db, library, nil, nil), db, library
}

func TestSetupRouter(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := setupRouter(h)

	routes, err := startup.GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	registered := make(map[string]bool)
	for _, r := range routes {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /healthz",
		"GET /livez",
		"HEAD /livez",
		"GET /readyz",
		"GET /version",
		"GET /api/media/{id:[0-9]+}/playlist.m3u8",
		"GET /api/media/{id:[0-9]+}/segments/{index:[0-9]+}.ts",
		"POST /api/forensics/{id:[0-9]+}/analyze",
		"GET /api/forensics/{id:[0-9]+}/identities",
		"GET /api/forensics/{id:[0-9]+}/sessions",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestRouterHealthEndpoints(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := setupRouter(h)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodHead, "/livez", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouterRejectsNonNumericIDs(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := setupRouter(h)

	paths := []string{
		"/api/media/abc/playlist.m3u8",
		"/api/media/1/segments/x.ts",
		"/api/forensics/abc/identities",
	}
	for _, p := range paths {
		req := httptest.NewRequest(http.MethodGet, p, http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want %d", p, w.Code, http.StatusNotFound)
		}
	}
}

func TestAnalyzeUnavailableWithoutForensicMode(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := setupRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/forensics/1/analyze", strings.NewReader(`{"path":"/tmp/a.mp4"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStatsProvider(t *testing.T) {
	_, db, library := newTestHandlers(t)
	ctx := context.Background()

	for u := int64(1); u <= 3; u++ {
		err := db.AssignFingerprint(ctx, database.Assignment{
			UserID:   u,
			MediaID:  9,
			Identity: strings.Repeat("ab", 16),
		})
		if err != nil {
			t.Fatalf("AssignFingerprint() error = %v", err)
		}
	}

	provider := statsProvider(library, db)
	var _ metrics.StatsProvider = provider

	stats := provider.GetStats()
	if stats.Fingerprints != 3 {
		t.Errorf("Fingerprints = %d, want 3", stats.Fingerprints)
	}
	if stats.StorageBytes != 0 {
		t.Errorf("StorageBytes = %d, want 0 for an empty library", stats.StorageBytes)
	}
	if len(stats.RenditionSets) != 0 {
		t.Errorf("RenditionSets = %v, want empty", stats.RenditionSets)
	}
}

func TestRunMaintenanceStops(t *testing.T) {
	_, db, library := newTestHandlers(t)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runMaintenance(library, db, time.Hour, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runMaintenance did not return after stop")
	}
}

func TestMetricsServer(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newMetricsServer("0", h)

	if srv.ReadTimeout <= 0 || srv.WriteTimeout <= 0 {
		t.Errorf("metrics server timeouts must be set: read=%v write=%v", srv.ReadTimeout, srv.WriteTimeout)
	}

	metrics.SetAppInfo("test", "abc123", "go")

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "media_forensics_app_info") {
		t.Error("metrics output missing media_forensics_app_info")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewTranscoderUsesConfig(t *testing.T) {
	cfg := &startup.Config{
		FFmpegPath:     "/opt/ffmpeg",
		FFprobePath:    "/opt/ffprobe",
		ProbeTimeout:   5 * time.Second,
		PackageTimeout: time.Minute,
	}
	if trans := newTranscoder(cfg); trans == nil {
		t.Fatal("newTranscoder() returned nil")
	}
}

func TestVolumeResolver(t *testing.T) {
	root := t.TempDir()
	config := &startup.Config{
		RenditionDir: filepath.Join(root, "renditions"),
		DatabaseDir:  filepath.Join(root, "db"),
	}

	vr := volumeResolver(config)
	if got := vr.Resolve(filepath.Join(root, "renditions", "7", "v2", "a", "segment_00001.ts")); got != "renditions" {
		t.Errorf("rendition path resolved to %q", got)
	}
	if got := vr.Resolve(filepath.Join(root, "db", "forensics.db")); got != "database" {
		t.Errorf("database path resolved to %q", got)
	}

	config.DatabaseURL = "postgres://forensics@db/forensics"
	if got := volumeResolver(config).Resolve(filepath.Join(root, "db", "forensics.db")); got != "unknown" {
		t.Errorf("external database should not be labeled, got %q", got)
	}
}
